// Package orderid генерирует и нормализует идентификаторы заказов вида PREFIX-YYMM-XXXX.
package orderid

import (
	"crypto/rand"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DefaultPrefix используется, если префикс не задан в конфигурации.
const DefaultPrefix = "IW"

const (
	alphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	tokenLength = 4
	// 252 — наибольшее кратное 36 число, не превышающее 256.
	maxRandomByte = 252

	maxExtractDepth = 8
)

var (
	canonicalRe = regexp.MustCompile(`^[A-Z]{2,5}-\d{4}-[A-Z0-9]{3,}$`)
	legacyRe    = regexp.MustCompile(`^([A-Z]{2,5})(\d{4})-([A-Z0-9]{3,})$`)
	embeddedRe  = regexp.MustCompile(`(?:^|[^A-Z0-9])([A-Z]{2,5})-?(\d{4})-([A-Z0-9]{3,})(?:$|[^A-Z0-9])`)
)

// idParams — имена параметров запроса, в которых может прийти идентификатор, в порядке приоритета.
var idParams = []string{"order_id", "orderid", "order", "id"}

// Generator выпускает новые идентификаторы заказов.
type Generator struct {
	prefix string
	now    func() time.Time
	random io.Reader
}

// Option настраивает Generator.
type Option func(*Generator)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithRandom подменяет источник случайных байтов.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// NewGenerator создаёт генератор с указанным префиксом.
func NewGenerator(prefix string, opts ...Option) *Generator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}

	g := &Generator{
		prefix: prefix,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate возвращает идентификатор PREFIX-YYMM-XXXX. Уникальность в хранилище не проверяется.
func (g *Generator) Generate() (string, error) {
	token, err := randomToken(g.random, tokenLength)
	if err != nil {
		return "", err
	}

	now := g.now()
	return fmt.Sprintf("%s-%02d%02d-%s", g.prefix, now.Year()%100, int(now.Month()), token), nil
}

func randomToken(r io.Reader, length int) (string, error) {
	token := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			token[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(token), nil
}

// IsCanonical сообщает, имеет ли строка канонический вид PREFIX-YYMM-XXXX.
func IsCanonical(s string) bool {
	return canonicalRe.MatchString(s)
}

// Normalize приводит идентификатор к каноническому виду. Никогда не возвращает ошибку:
// нераспознанное значение возвращается обрезанным и в верхнем регистре.
func Normalize(raw string) string {
	s := trim(raw)
	if s == "" {
		return ""
	}

	candidate := strings.ToUpper(s)
	for i := 0; i < maxExtractDepth; i++ {
		next := strings.ToUpper(trim(extractCandidate(candidate)))
		if next == candidate || next == "" {
			break
		}
		candidate = next
	}

	if canonicalRe.MatchString(candidate) {
		return candidate
	}
	if m := legacyRe.FindStringSubmatch(candidate); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	if id, ok := findEmbedded(candidate); ok {
		return id
	}
	if id, ok := findEmbedded(strings.ToUpper(s)); ok {
		return id
	}

	return candidate
}

// Key строит ключ сравнения: нижний регистр, без дефисов и пробельных символов (включая NBSP).
func Key(raw string) string {
	s := strings.ToLower(raw)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func trim(s string) string {
	for {
		prev := s
		s = strings.TrimFunc(s, unicode.IsSpace)
		s = strings.Trim(s, `"'`)
		if s == prev {
			return s
		}
	}
}

func findEmbedded(s string) (string, bool) {
	m := embeddedRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2] + "-" + m[3], true
}

// extractCandidate достаёт идентификатор из URL или строки запроса.
func extractCandidate(s string) string {
	if !strings.ContainsAny(s, "/?=&#") {
		return s
	}

	path, query := s, ""
	if u, err := url.Parse(s); err == nil {
		path, query = u.Path, u.RawQuery
	}
	if !strings.ContainsAny(s, "/?") && strings.Contains(s, "=") {
		path, query = "", s
	}

	if query != "" {
		if values, err := url.ParseQuery(query); err == nil {
			for _, name := range idParams {
				for k, v := range values {
					if strings.EqualFold(k, name) && len(v) > 0 && strings.TrimSpace(v[0]) != "" {
						return v[0]
					}
				}
			}
		}
	}

	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segments[i]); seg != "" {
			return seg
		}
	}

	return s
}
