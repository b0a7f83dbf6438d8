package fingerprint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DataDog/go-sqllexer"
	"github.com/cespare/xxhash/v2"
)

// Statement is the canonical form of one SQL text: literals replaced with
// placeholders, keywords uppercased, whitespace collapsed, comments stripped.
// Two statements that differ only in literal values share a Hash.
type Statement struct {
	Raw       string
	Canonical string
	Hash      string
	Tables    []string
	Command   string
}

var (
	placeholderListRe = regexp.MustCompile(`\(\s*\?(?:\s*,\s*\?)+\s*\)`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
)

// Fingerprint normalizes sql into its canonical form and stable hash. It
// never fails: input the lexer cannot make sense of degrades to hashing the
// trimmed raw text verbatim.
func Fingerprint(sql string) Statement {
	raw := strings.TrimSpace(sql)

	obfuscator := sqllexer.NewObfuscator(
		sqllexer.WithReplaceDigits(true),
	)
	normalizer := sqllexer.NewNormalizer(
		sqllexer.WithCollectTables(true),
		sqllexer.WithCollectCommands(true),
		sqllexer.WithUppercaseKeywords(true),
	)

	canonical, meta, err := sqllexer.ObfuscateAndNormalize(raw, obfuscator, normalizer)
	if err != nil || strings.TrimSpace(canonical) == "" {
		fallback := whitespaceRe.ReplaceAllString(raw, " ")
		return Statement{
			Raw:       raw,
			Canonical: fallback,
			Hash:      hash(fallback),
		}
	}

	// IN (?, ?, ?) and IN (?) must land on the same fingerprint.
	canonical = placeholderListRe.ReplaceAllString(canonical, "( ? )")
	canonical = strings.TrimSpace(whitespaceRe.ReplaceAllString(canonical, " "))

	stmt := Statement{
		Raw:       raw,
		Canonical: canonical,
		Hash:      hash(canonical),
	}
	if meta != nil {
		stmt.Tables = dedupTables(meta.Tables)
		if len(meta.Commands) > 0 {
			stmt.Command = meta.Commands[0]
		}
	}
	return stmt
}

func hash(canonical string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(canonical))
}

func dedupTables(tables []string) []string {
	seen := make(map[string]bool, len(tables))
	var out []string
	for _, t := range tables {
		t = strings.ToLower(strings.Trim(t, "`\""))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
