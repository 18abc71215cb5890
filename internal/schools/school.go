// Package schools defines the canonical school record, its CSV form and the
// slugs derived from it.
package schools

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
)

// School is one row of the canonical schools CSV.
type School struct {
	NPSN             string `json:"npsn" validate:"required,numeric" jsonschema:"description=Nomor Pokok Sekolah Nasional,pattern=^[0-9]+$"`
	Nama             string `json:"nama" validate:"required" jsonschema:"description=School name"`
	BentukPendidikan string `json:"bentuk_pendidikan,omitempty" jsonschema:"description=Education level (SD/SMP/SMA/SMK/...)"`
	Status           string `json:"status,omitempty" jsonschema:"enum=N,enum=S,enum=,description=N for negeri (public) or S for swasta (private)"`
	Alamat           string `json:"alamat,omitempty"`
	Kelurahan        string `json:"kelurahan,omitempty" jsonschema:"description=Village or sub-district"`
	Kecamatan        string `json:"kecamatan" validate:"required" jsonschema:"description=District"`
	KabKota          string `json:"kab_kota" validate:"required" jsonschema:"description=Regency or city"`
	Provinsi         string `json:"provinsi" validate:"required" jsonschema:"description=Province"`
	Lat              string `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon              string `json:"lon,omitempty" validate:"omitempty,longitude"`
	UpdatedAt        string `json:"updated_at,omitempty" jsonschema:"description=Date the record was last refreshed (YYYY-MM-DD)"`
	Telepon          string `json:"telepon,omitempty"`
	Email            string `json:"email,omitempty"`
}

// StatusLabel returns the human-readable status.
func (s School) StatusLabel() string {
	switch strings.ToUpper(s.Status) {
	case "S":
		return "Swasta"
	case "N":
		return "Negeri"
	default:
		return s.Status
	}
}

// HasCoordinates reports whether both lat and lon are present.
func (s School) HasCoordinates() bool {
	return s.Lat != "" && s.Lon != ""
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return jsonName(f.Tag.Get("json"))
		})
	})
	return validate
}

func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// Validate checks required fields, a numeric NPSN and coordinate bounds.
// The returned error is a VALIDATION_ERROR listing every failing field.
func (s School) Validate() error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return resilience.ValidationError("validateSchool", "invalid school record", err, nil)
	}

	fields := make([]string, 0, len(verrs))
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+":"+fe.Tag())
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}

	msg := "invalid school record " + s.NPSN
	if len(missing) > 0 {
		msg = "school record missing required fields: " + strings.Join(missing, ", ")
	}
	return resilience.ValidationError("validateSchool", msg, err, map[string]any{
		"npsn":   s.NPSN,
		"fields": fields,
	})
}
