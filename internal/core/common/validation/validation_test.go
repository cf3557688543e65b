package validation_test

import (
	"net/http"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type signup struct {
	Email    string  `json:"email" validate:"required,email"`
	Name     string  `json:"name" validate:"required,max=5"`
	Genre    string  `json:"genre" validate:"omitempty,oneof=m f"`
	Nickname *string `json:"nickname,omitempty" validate:"omitempty,min=2"`
}

func fields(err *internal.AppError) map[string][]string {
	details, ok := err.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())
	return details.FieldMessages()
}

var _ = Describe("ValidationBuilder", func() {
	It("collects every failing field", func() {
		v := validation.NewValidator()
		v.Field("name", "").Required()
		v.Field("email", "not-an-email").Email()
		v.Field("genre", "x").OneOf("m", "f")
		v.Field("birth_date", time.Now().Add(48*time.Hour)).NotFuture()

		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		Expect(fields(err)).To(HaveKeyWithValue("name", ConsistOf("name is required")))
		Expect(fields(err)).To(HaveKey("email"))
		Expect(fields(err)).To(HaveKeyWithValue("genre", ConsistOf("genre must be one of: m, f")))
		Expect(fields(err)).To(HaveKey("birth_date"))
	})

	It("passes valid input", func() {
		v := validation.NewValidator()
		v.Field("email", "alice@x.test").Required().Email()
		Expect(v.Validate()).To(BeNil())
	})

	It("enforces the password length", func() {
		Expect(validation.ValidatePassword("short", 8)).NotTo(BeNil())
		Expect(validation.ValidatePassword("long enough", 8)).To(BeNil())
	})
})

var _ = Describe("Struct", func() {
	It("reports json field names", func() {
		short := "x"
		err := validation.Struct(signup{Email: "nope", Name: "too long", Genre: "z", Nickname: &short})
		Expect(err).NotTo(BeNil())
		msgs := fields(err)
		Expect(msgs).To(HaveKeyWithValue("email", ConsistOf("email must be a valid email address")))
		Expect(msgs).To(HaveKeyWithValue("name", ConsistOf("name must not exceed 5 characters")))
		Expect(msgs).To(HaveKeyWithValue("genre", ConsistOf("genre must be one of: m, f")))
		Expect(msgs).To(HaveKeyWithValue("nickname", ConsistOf("nickname must be at least 2 characters")))
	})

	It("accepts a valid struct", func() {
		Expect(validation.Struct(signup{Email: "a@x.test", Name: "Al"})).To(BeNil())
	})
})
