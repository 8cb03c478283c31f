package txn

import (
	"fmt"
	"regexp"

	"github.com/target/cashier/internal/domain/money"
)

// PatternSet matches console feedback after money.NormalizeText, so expressions are written
// lowercase and without accents.
type PatternSet []*regexp.Regexp

// Match reports whether any pattern matches the normalized text.
func (ps PatternSet) Match(text string) bool {
	norm := money.NormalizeText(text)
	if norm == "" {
		return false
	}
	for _, re := range ps {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

// Patterns groups the feedback classifiers the state machine relies on.
type Patterns struct {
	InvalidCredentials PatternSet
	Error              PatternSet
	Success            PatternSet
}

// Default feedback expressions for the supported consoles (Spanish and English UIs).
var (
	DefaultInvalidCredentials = []string{
		`usuario (o|y) contrasena (incorrect|invalid)`,
		`credenciales (incorrectas|invalidas)`,
		`contrasena incorrecta`,
		`invalid (username|password|credentials)`,
		`(usuario|cuenta) (bloquead|suspendid)`,
	}
	DefaultError = []string{
		`saldo insuficiente`,
		`fondos insuficientes`,
		`insufficient (funds|balance)`,
		`monto (invalido|incorrecto)`,
		`no se (pudo|puede)`,
		`\berror\b`,
		`rechazad[oa]`,
	}
	DefaultSuccess = []string{
		`\bexito(sa|so)?\b`,
		`realizad[oa] correctamente`,
		`(carga|descarga|deposito|retiro) (realizad|exitos|completad)`,
		`\bsuccess(ful(ly)?)?\b`,
		`completed`,
	}
)

// CompilePatterns compiles the three expression lists.
func CompilePatterns(invalidCredentials, errs, success []string) (Patterns, error) {
	var (
		p   Patterns
		err error
	)
	if p.InvalidCredentials, err = compileSet("invalid credentials", invalidCredentials); err != nil {
		return Patterns{}, err
	}
	if p.Error, err = compileSet("error", errs); err != nil {
		return Patterns{}, err
	}
	if p.Success, err = compileSet("success", success); err != nil {
		return Patterns{}, err
	}
	return p, nil
}

// DefaultPatterns returns the built-in expressions compiled.
func DefaultPatterns() Patterns {
	p, err := CompilePatterns(DefaultInvalidCredentials, DefaultError, DefaultSuccess)
	if err != nil {
		panic(err)
	}
	return p
}

func compileSet(name string, exprs []string) (PatternSet, error) {
	out := make(PatternSet, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", name, expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}
