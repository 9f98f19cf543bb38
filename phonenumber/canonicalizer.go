package phonenumber

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var localeRegionPattern = regexp.MustCompile(`[^a-z]*-?([A-Z]{2,3})`)

// RegionFromLocale extracts a region code from a locale tag such as "en-ZA"
// or "pt_BR". It returns "" when the tag carries no upper-case region.
func RegionFromLocale(tag string) string {
	match := localeRegionPattern.FindStringSubmatch(tag)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// Options configures a Canonicalizer.
type Options struct {
	// DefaultRegion takes precedence over Locale.
	DefaultRegion string
	// Locale is consulted through RegionFromLocale when DefaultRegion is empty.
	Locale string
	// Format is the canonical output format name. Unknown names fall back to E164.
	Format string
	// Strict rejects numbers that parse but are not valid in their numbering plan.
	Strict bool
	// AllowPattern, when set, must match the whole canonical number.
	AllowPattern string

	Logger *slog.Logger
}

// Canonicalizer normalizes raw phone input.
type Canonicalizer struct {
	region string
	format Format
	strict bool
	allow  *regexp.Regexp
	logger *slog.Logger
}

// New builds a Canonicalizer. It fails only when AllowPattern does not compile.
func New(opts Options) (*Canonicalizer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Canonicalizer{
		region: strings.ToUpper(strings.TrimSpace(opts.DefaultRegion)),
		strict: opts.Strict,
		logger: logger,
	}
	if c.region == "" && opts.Locale != "" {
		c.region = RegionFromLocale(opts.Locale)
	}

	c.format = FormatE164
	if strings.TrimSpace(opts.Format) != "" {
		f, ok := ParseFormat(opts.Format)
		if ok {
			c.format = f
		} else {
			logger.Warn("unknown phone number format, using E164", "format", opts.Format)
		}
	}

	if pattern := strings.TrimSpace(opts.AllowPattern); pattern != "" {
		re, err := regexp.Compile(`^(?:` + pattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("compile allow pattern: %w", err)
		}
		c.allow = re
	}

	return c, nil
}

// Region returns the resolved default region, or "" when none applies.
func (c *Canonicalizer) Region() string {
	return c.region
}

// Format returns the canonical output format in effect.
func (c *Canonicalizer) Format() Format {
	return c.format
}

// Canonicalize normalizes raw using the configured default region.
func (c *Canonicalizer) Canonicalize(raw string) (string, error) {
	return c.CanonicalizeIn(raw, c.region)
}

// CanonicalizeIn normalizes raw using region as the default region. Without a
// region the input must carry its country code; a missing leading plus is
// added unless the input is a tel: URI.
//
// NATIONAL output is only used for numbers of region's own country. Other
// numbers, and every number when region is empty, are rendered
// INTERNATIONAL so the result parses back to the same number.
func (c *Canonicalizer) CanonicalizeIn(raw, region string) (string, error) {
	input := strings.TrimSpace(raw)
	region = strings.ToUpper(strings.TrimSpace(region))
	if input == "" {
		return "", &Error{Reason: ReasonUnparseable, Input: raw, Err: errors.New("empty input")}
	}
	if region == "" && !strings.HasPrefix(input, "+") && !hasTelScheme(input) {
		input = "+" + input
	}

	num, err := phonenumbers.Parse(input, region)
	if err != nil {
		return "", &Error{Reason: ReasonUnparseable, Input: raw, Err: err}
	}
	if c.strict && !phonenumbers.IsValidNumber(num) {
		return "", &Error{Reason: ReasonValidationFailed, Input: raw}
	}

	format := c.format
	if format == FormatNational && int(num.GetCountryCode()) != phonenumbers.GetCountryCodeForRegion(region) {
		format = FormatInternational
	}
	canonical := phonenumbers.Format(num, formats[format])
	if c.allow != nil && !c.allow.MatchString(canonical) {
		return "", &Error{Reason: ReasonNotSupported, Input: raw}
	}
	return canonical, nil
}

// Equivalents returns alternate textual forms of canonical that legacy rows
// may hold: the national significant number, every supported format and the
// digits-only rendering of each. canonical itself is included. The result is
// sorted and free of duplicates.
func (c *Canonicalizer) Equivalents(canonical string) ([]string, error) {
	num, err := phonenumbers.Parse(canonical, c.region)
	if err != nil {
		return nil, &Error{Reason: ReasonUnparseable, Input: canonical, Err: err}
	}

	set := map[string]struct{}{canonical: {}}
	add := func(v string) {
		if v != "" {
			set[v] = struct{}{}
		}
	}

	add(phonenumbers.GetNationalSignificantNumber(num))
	for _, f := range allFormats {
		formatted := phonenumbers.Format(num, formats[f])
		add(formatted)
		add(digitsOnly(formatted))
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func hasTelScheme(s string) bool {
	return len(s) >= 4 && strings.EqualFold(s[:4], "tel:")
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
