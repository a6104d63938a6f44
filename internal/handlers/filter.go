package handlers

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/starfederation/datastar-go/datastar"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

// dashboardRequest is the filter as sent by a client, either as query
// parameters or as datastar signals.
type dashboardRequest struct {
	Region   string   `json:"regiao" validate:"omitempty,region"`
	AllYears bool     `json:"allYears"`
	Year     int      `json:"ano" validate:"omitempty,dashyear"`
	Sellers  []string `json:"vendedores" validate:"omitempty,dive,required,max=200"`
	Top      int      `json:"top" validate:"omitempty,dashtop"`
}

// filterBinder parses and validates dashboard requests against the
// configured year and top-N bounds.
type filterBinder struct {
	cfg        config.DashboardConfig
	validator  *validator.Validate
	translator ut.Translator
}

func newFilterBinder(cfg config.DashboardConfig) *filterBinder {
	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())

	// messages name the wire field, not the Go field
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		if tag == "" || tag == "-" {
			return fld.Name
		}
		return tag
	})
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	b := &filterBinder{cfg: cfg, validator: v, translator: trans}

	b.register("region", func(fl validator.FieldLevel) bool {
		_, ok := models.CanonicalRegion(fl.Field().String())
		return ok
	}, "{0} must be one of "+strings.Join(models.Regions, ", "))

	b.register("dashyear", func(fl validator.FieldLevel) bool {
		y := int(fl.Field().Int())
		return y >= cfg.MinYear && y <= cfg.MaxYear
	}, fmt.Sprintf("{0} must be between %d and %d", cfg.MinYear, cfg.MaxYear))

	b.register("dashtop", func(fl validator.FieldLevel) bool {
		n := int(fl.Field().Int())
		return n >= cfg.MinTop && n <= cfg.MaxTop
	}, fmt.Sprintf("{0} must be between %d and %d", cfg.MinTop, cfg.MaxTop))

	return b
}

func (b *filterBinder) register(tag string, fn validator.Func, message string) {
	_ = b.validator.RegisterValidation(tag, fn)
	_ = b.validator.RegisterTranslation(tag, b.translator,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field())
			return msg
		},
	)
}

// fromQuery reads regiao, ano, repeated vendedor and top. An empty ano
// selects the whole period.
func (b *filterBinder) fromQuery(r *http.Request) (models.Filter, int, error) {
	q := r.URL.Query()
	req := dashboardRequest{
		Region:   q.Get("regiao"),
		AllYears: true,
		Sellers:  q["vendedor"],
	}

	if raw := strings.TrimSpace(q.Get("ano")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return models.Filter{}, 0, errors.Validation("Invalid dashboard filter").
				WithDetails("ano must be a year")
		}
		req.Year = year
		req.AllYears = false
	}

	if raw := strings.TrimSpace(q.Get("top")); raw != "" {
		top, err := strconv.Atoi(raw)
		if err != nil {
			return models.Filter{}, 0, errors.Validation("Invalid dashboard filter").
				WithDetails("top must be a number")
		}
		req.Top = top
	}

	return b.bind(req)
}

// fromSignals reads the filter from the datastar signals of the request.
func (b *filterBinder) fromSignals(r *http.Request) (models.Filter, int, error) {
	var req dashboardRequest
	if err := datastar.ReadSignals(r, &req); err != nil {
		return models.Filter{}, 0, errors.ValidationWrap(err, "Invalid dashboard signals").
			WithDetails(err.Error())
	}
	return b.bind(req)
}

func (b *filterBinder) bind(req dashboardRequest) (models.Filter, int, error) {
	if req.AllYears {
		req.Year = 0
	}

	if err := b.validator.Struct(req); err != nil {
		return models.Filter{}, 0, errors.ValidationWrap(err, "Invalid dashboard filter").
			WithDetails(b.message(err))
	}

	region := models.AllRegions
	if req.Region != "" {
		region, _ = models.CanonicalRegion(req.Region)
	}

	return models.Filter{
		Region:  region,
		Year:    req.Year,
		Sellers: req.Sellers,
	}, req.Top, nil
}

// message returns the translated message of the first failing field.
func (b *filterBinder) message(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			return fe.Translate(b.translator)
		}
	}
	return err.Error()
}
