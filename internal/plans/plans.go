// Package plans содержит таблицу правил тарифных планов для анкеты проекта.
package plans

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/impulsaweb/internal/model"
)

// Mode определяет, как в анкете выбираются страницы.
type Mode string

const (
	// ModeSingle — ровно одна страница, новый выбор заменяет старый.
	ModeSingle Mode = "single"
	// ModeMulti — от 1 до MaxPages страниц, выбор переключает принадлежность.
	ModeMulti Mode = "multi"
	// ModeNone — страницы не выбираются, вместо них обязателен рынок.
	ModeNone Mode = "none"
)

// Option — элемент закрытого словаря.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Rule описывает структуру анкеты для одного тарифа.
type Rule struct {
	Key           string   `json:"key"`
	Label         string   `json:"label"`
	Mode          Mode     `json:"mode"`
	MaxPages      int      `json:"max_pages"`
	StyleOptions  []string `json:"style_options"`
	PageOptions   []Option `json:"page_options,omitempty"`
	MarketOptions []Option `json:"market_options,omitempty"`
}

var styleOptions = []string{
	"moderno",
	"minimalista",
	"corporativo",
	"elegante",
	"creativo",
	"premium",
	"juvenil",
}

var rules = []Rule{
	{
		Key:          "landing",
		Label:        "Landing Page",
		Mode:         ModeSingle,
		MaxPages:     1,
		StyleOptions: styleOptions,
		PageOptions: []Option{
			{ID: "inicio", Label: "Inicio"},
			{ID: "servicios", Label: "Servicios"},
			{ID: "portafolio", Label: "Portafolio"},
			{ID: "contacto", Label: "Contacto"},
			{ID: "faq", Label: "Preguntas frecuentes"},
		},
	},
	{
		Key:          "web",
		Label:        "Web Profesional",
		Mode:         ModeMulti,
		MaxPages:     5,
		StyleOptions: styleOptions,
		PageOptions: []Option{
			{ID: "inicio", Label: "Inicio"},
			{ID: "nosotros", Label: "Nosotros"},
			{ID: "servicios", Label: "Servicios"},
			{ID: "portafolio", Label: "Portafolio"},
			{ID: "blog", Label: "Blog"},
			{ID: "contacto", Label: "Contacto"},
			{ID: "faq", Label: "Preguntas frecuentes"},
			{ID: "testimonios", Label: "Testimonios"},
		},
	},
	{
		Key:          "tienda",
		Label:        "Tienda Online",
		Mode:         ModeNone,
		StyleOptions: styleOptions,
		MarketOptions: []Option{
			{ID: "b2c", Label: "B2C (venta al detalle)"},
			{ID: "b2b", Label: "B2B (empresas)"},
			{ID: "mayorista", Label: "Mayorista"},
			{ID: "local", Label: "Local (ciudad / región)"},
			{ID: "nacional", Label: "Nacional (Colombia)"},
			{ID: "internacional", Label: "Internacional"},
		},
	},
}

var aliases = map[string]string{
	"landing-page":    "landing",
	"web-profesional": "web",
	"store":           "tienda",
	"tienda-online":   "tienda",
}

func normalizePlan(planID string) string {
	key := strings.ToLower(strings.TrimSpace(planID))
	key = strings.Join(strings.Fields(strings.ReplaceAll(key, "_", " ")), "-")
	if alias, ok := aliases[key]; ok {
		return alias
	}
	return key
}

// Lookup возвращает правило по идентификатору тарифа.
func Lookup(planID string) (Rule, bool) {
	key := normalizePlan(planID)
	for _, r := range rules {
		if r.Key == key {
			return r, true
		}
	}
	return Rule{}, false
}

// All возвращает копию таблицы правил.
func All() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Select применяет выбор страницы к текущему набору.
// limitReached выставляется, если добавление отклонено из-за MaxPages.
func (r Rule) Select(selected []string, page string) (next []string, limitReached bool) {
	page = strings.TrimSpace(page)
	current := append([]string(nil), selected...)

	switch r.Mode {
	case ModeSingle:
		if page == "" {
			return current, false
		}
		return []string{page}, false
	case ModeMulti:
		for i, p := range current {
			if p == page {
				return append(current[:i], current[i+1:]...), false
			}
		}
		if page == "" {
			return current, false
		}
		if len(current) >= r.MaxPages {
			return current, true
		}
		return append(current, page), false
	default:
		return current, false
	}
}

// CanProceed сообщает, заполнен ли шаг структуры анкеты.
func (r Rule) CanProceed(pages []string, market string) bool {
	switch r.Mode {
	case ModeSingle:
		return len(pages) == 1
	case ModeMulti:
		return len(pages) >= 1 && len(pages) <= r.MaxPages
	case ModeNone:
		return strings.TrimSpace(market) != ""
	default:
		return false
	}
}

// Check проверяет страницы, стиль и рынок брифа на соответствие правилу.
func (r Rule) Check(pages []string, style, market string) []model.FieldError {
	var problems []model.FieldError

	if style != "" && len(r.StyleOptions) > 0 {
		if _, ok := r.CanonicalStyle(style); !ok {
			problems = append(problems, model.FieldError{
				Field:  model.ColStyle,
				Reason: fmt.Sprintf("must be one of: %s", strings.Join(r.StyleOptions, ", ")),
			})
		}
	}

	switch r.Mode {
	case ModeSingle:
		if len(pages) != 1 {
			problems = append(problems, model.FieldError{
				Field:  model.ColPages,
				Reason: fmt.Sprintf("exactly 1 page required, got %d", len(pages)),
			})
		}
	case ModeMulti:
		if len(pages) == 0 {
			problems = append(problems, model.FieldError{Field: model.ColPages, Reason: "required"})
		} else if len(pages) > r.MaxPages {
			problems = append(problems, model.FieldError{
				Field:  model.ColPages,
				Reason: fmt.Sprintf("at most %d pages allowed, got %d", r.MaxPages, len(pages)),
			})
		}
	case ModeNone:
		if strings.TrimSpace(market) == "" {
			problems = append(problems, model.FieldError{Field: model.ColMarket, Reason: "required"})
		} else if _, ok := r.CanonicalMarket(market); !ok {
			problems = append(problems, model.FieldError{
				Field:  model.ColMarket,
				Reason: "unknown market option",
			})
		}
		if len(pages) > 0 {
			problems = append(problems, model.FieldError{
				Field:  model.ColPages,
				Reason: "pages are not selectable for this plan",
			})
		}
	}

	if r.Mode != ModeNone {
		for _, p := range pages {
			if !hasOption(r.PageOptions, p) {
				problems = append(problems, model.FieldError{
					Field:  model.ColPages,
					Reason: fmt.Sprintf("unknown page %q", p),
				})
			}
		}
	}

	return problems
}

// CanonicalStyle возвращает стиль в написании словаря.
func (r Rule) CanonicalStyle(style string) (string, bool) {
	s := strings.TrimSpace(style)
	for _, opt := range r.StyleOptions {
		if strings.EqualFold(opt, s) {
			return opt, true
		}
	}
	return s, false
}

// CanonicalMarket принимает идентификатор или подпись рынка и возвращает идентификатор.
func (r Rule) CanonicalMarket(market string) (string, bool) {
	m := strings.TrimSpace(market)
	for _, opt := range r.MarketOptions {
		if strings.EqualFold(opt.ID, m) || strings.EqualFold(opt.Label, m) {
			return opt.ID, true
		}
	}
	return m, false
}

func hasOption(options []Option, id string) bool {
	for _, o := range options {
		if strings.EqualFold(o.ID, id) {
			return true
		}
	}
	return false
}
