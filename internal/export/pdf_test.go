package export_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/frahmantamala/document-management/internal/export"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const fakeOffice = `#!/bin/sh
dir="$5"
src="$6"
out="$dir/$(basename "${src%.*}").pdf"
printf '%%PDF-1.4 fake' > "$out"
echo "convert $src -> $out using filter : writer_pdf_Export"
`

func script(dir, name, body string) string {
	p := filepath.Join(dir, name)
	Expect(os.WriteFile(p, []byte(body), 0o755)).To(Succeed())
	return p
}

var _ = Describe("Converter", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("returns the file named in the converter output", func() {
		c := export.NewConverter(script(dir, "office", fakeOffice), time.Minute)
		out, err := c.Convert(context.Background(), "users.docx", []byte("docx"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("%PDF-1.4 fake"))
	})

	It("fails on a non-zero exit", func() {
		c := export.NewConverter(script(dir, "office", "#!/bin/sh\necho broken >&2\nexit 3\n"), time.Minute)
		_, err := c.Convert(context.Background(), "users.docx", []byte("docx"))
		Expect(err).To(MatchError(export.ErrConversion))
		Expect(err.Error()).To(ContainSubstring("broken"))
	})

	It("fails when the output path cannot be found", func() {
		c := export.NewConverter(script(dir, "office", "#!/bin/sh\necho done\n"), time.Minute)
		_, err := c.Convert(context.Background(), "users.docx", []byte("docx"))
		Expect(err).To(MatchError(export.ErrConversion))
	})

	It("fails when the binary is missing", func() {
		c := export.NewConverter(filepath.Join(dir, "nope"), time.Minute)
		_, err := c.Convert(context.Background(), "users.docx", nil)
		Expect(err).To(MatchError(export.ErrConversion))
	})

	It("defaults to soffice", func() {
		Expect(export.NewConverter("", 0).Bin).To(Equal("soffice"))
	})
})
