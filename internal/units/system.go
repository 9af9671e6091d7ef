package units

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// System resolves unit symbols and compound expressions. A System is built
// explicitly with NewSystem and handed to whoever parses units; there is no
// package-level registry.
type System struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// NewSystem returns a System preloaded with the SI and radiometry units used
// across the module.
func NewSystem() *System {
	s := &System{units: make(map[string]Unit)}
	for _, u := range []Unit{
		Dimensionless, Percent, PartsPerMillion,
		Meter, Kilometer, Centimeter, Millimeter, Micrometer, Nanometer,
		Second, Millisecond, Microsecond, Nanosecond, Hertz,
		Kilogram, Gram, Kelvin, Ampere, Mole, Candela,
		Radian, Steradian, Joule, Watt, Jones,
	} {
		s.units[u.Symbol()] = u
	}
	s.units["µm"] = Micrometer.Named("µm")
	s.units["μm"] = Micrometer.Named("μm")
	s.units["micron"] = Micrometer.Named("micron")
	s.units["µs"] = Microsecond.Named("µs")
	s.units["kHz"] = Unit{scale: 1e3, dims: Hertz.dims, symbol: "kHz"}
	s.units["MHz"] = Unit{scale: 1e6, dims: Hertz.dims, symbol: "MHz"}
	s.units["mW"] = Unit{scale: 1e-3, dims: Watt.dims, symbol: "mW"}
	s.units["uW"] = Unit{scale: 1e-6, dims: Watt.dims, symbol: "uW"}
	s.units["nW"] = Unit{scale: 1e-9, dims: Watt.dims, symbol: "nW"}
	s.units["pW"] = Unit{scale: 1e-12, dims: Watt.dims, symbol: "pW"}
	return s
}

// Lookup returns the unit registered under symbol.
func (s *System) Lookup(symbol string) (Unit, error) {
	s.mu.RLock()
	u, ok := s.units[symbol]
	s.mu.RUnlock()
	if !ok {
		return Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, symbol)
	}
	return u, nil
}

// Define registers symbol as an alias of the compound expression expr.
func (s *System) Define(symbol, expr string) (Unit, error) {
	if !validSymbol(symbol) {
		return Unit{}, fmt.Errorf("%w: invalid symbol %q", ErrUnitSyntax, symbol)
	}
	u, err := s.Parse(expr)
	if err != nil {
		return Unit{}, fmt.Errorf("define %q: %w", symbol, err)
	}
	u = u.Named(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.units[symbol]; exists {
		return Unit{}, fmt.Errorf("units: symbol %q is already defined", symbol)
	}
	s.units[symbol] = u
	return u, nil
}

// Symbols lists every registered symbol in lexical order.
func (s *System) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.units))
	for k := range s.units {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Quantity parses expr and returns value expressed in it.
func (s *System) Quantity(value float64, expr string) (Quantity, error) {
	u, err := s.Parse(expr)
	if err != nil {
		return Quantity{}, err
	}
	return New(value, u), nil
}

// ParseQuantity reads "<number> <unit expression>", for example "17 um",
// "8e8 Jones" or "300K". A bare number is dimensionless. NaN and infinite
// magnitudes are rejected.
func (s *System) ParseQuantity(text string) (Quantity, error) {
	text = strings.TrimSpace(text)
	end := numberPrefix(text)
	if end == 0 {
		return Quantity{}, fmt.Errorf("%w: no leading number in %q", ErrUnitSyntax, text)
	}
	v, err := strconv.ParseFloat(text[:end], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: %q: %v", ErrUnitSyntax, text, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Quantity{}, fmt.Errorf("%w: %q: magnitude must be finite", ErrUnitSyntax, text)
	}
	rest := strings.TrimSpace(text[end:])
	if rest == "" {
		return New(v, Dimensionless), nil
	}
	return s.Quantity(v, rest)
}

// numberPrefix returns the length of the longest leading float literal.
func numberPrefix(s string) int {
	end := 0
	for i := 1; i <= len(s); i++ {
		if _, err := strconv.ParseFloat(s[:i], 64); err == nil || errors.Is(err, strconv.ErrRange) {
			end = i
		}
	}
	return end
}

// MustParse is Parse for expressions known at compile time.
func (s *System) MustParse(expr string) Unit {
	u, err := s.Parse(expr)
	if err != nil {
		panic(err)
	}
	return u
}

// Parse resolves a compound unit expression such as "W/m^2/um/sr" or
// "Hz^0.5*cm/W". Products may be written with '*', '·' or whitespace, powers
// with '^' or '**'. Division binds to the factor that follows it.
func (s *System) Parse(expr string) (Unit, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Unit{}, fmt.Errorf("%w: empty expression", ErrUnitSyntax)
	}
	toks, err := tokenize(expr)
	if err != nil {
		return Unit{}, err
	}
	p := &parser{sys: s, toks: toks, src: expr}
	u, err := p.product()
	if err != nil {
		return Unit{}, err
	}
	if !p.done() {
		return Unit{}, fmt.Errorf("%w: unexpected %q in %q", ErrUnitSyntax, p.peek().text, expr)
	}
	return u.Named(expr), nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokMul
	tokDiv
	tokPow
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	rs := []rune(expr)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			toks = append(toks, token{tokPow, "**"})
			i += 2
		case r == '*' || r == '·' || r == '.':
			toks = append(toks, token{tokMul, string(r)})
			i++
		case r == '/':
			toks = append(toks, token{tokDiv, "/"})
			i++
		case r == '^':
			toks = append(toks, token{tokPow, "^"})
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case unicode.IsDigit(r) || r == '-' || r == '+':
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == 'e' || rs[j] == 'E' ||
				((rs[j] == '-' || rs[j] == '+') && (rs[j-1] == 'e' || rs[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{tokNumber, string(rs[i:j])})
			i = j
		case isIdentRune(r):
			j := i + 1
			for j < len(rs) && isIdentRune(rs[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, string(rs[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q in %q", ErrUnitSyntax, r, expr)
		}
	}
	return toks, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || r == '%' || r == '_'
}

func validSymbol(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isIdentRune(r) {
			return false
		}
	}
	return true
}

type parser struct {
	sys  *System
	toks []token
	pos  int
	src  string
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

// product := power { ('*' | '/' | <juxtaposition>) power }
func (p *parser) product() (Unit, error) {
	acc, err := p.power()
	if err != nil {
		return Unit{}, err
	}
	for !p.done() {
		t := p.peek()
		switch t.kind {
		case tokMul, tokDiv:
			p.next()
			rhs, err := p.power()
			if err != nil {
				return Unit{}, err
			}
			if t.kind == tokDiv {
				acc = acc.Div(rhs)
			} else {
				acc = acc.Mul(rhs)
			}
		case tokIdent, tokNumber, tokLParen:
			rhs, err := p.power()
			if err != nil {
				return Unit{}, err
			}
			acc = acc.Mul(rhs)
		default:
			return acc, nil
		}
	}
	return acc, nil
}

// power := atom [ '^' number ]
func (p *parser) power() (Unit, error) {
	base, err := p.atom()
	if err != nil {
		return Unit{}, err
	}
	if p.done() || p.peek().kind != tokPow {
		return base, nil
	}
	p.next()
	if p.done() {
		return Unit{}, fmt.Errorf("%w: missing exponent in %q", ErrUnitSyntax, p.src)
	}
	if p.peek().kind == tokLParen {
		// ^(-1), ^(0.5)
		p.next()
		exp, err := p.exponent()
		if err != nil {
			return Unit{}, err
		}
		if p.done() || p.next().kind != tokRParen {
			return Unit{}, fmt.Errorf("%w: unbalanced exponent parentheses in %q", ErrUnitSyntax, p.src)
		}
		return base.Pow(exp), nil
	}
	exp, err := p.exponent()
	if err != nil {
		return Unit{}, err
	}
	return base.Pow(exp), nil
}

func (p *parser) exponent() (float64, error) {
	if p.done() {
		return 0, fmt.Errorf("%w: missing exponent in %q", ErrUnitSyntax, p.src)
	}
	t := p.next()
	if t.kind != tokNumber {
		return 0, fmt.Errorf("%w: exponent %q is not a number in %q", ErrUnitSyntax, t.text, p.src)
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: exponent %q: %v", ErrUnitSyntax, t.text, err)
	}
	return v, nil
}

// atom := ident | number | '(' product ')'
func (p *parser) atom() (Unit, error) {
	if p.done() {
		return Unit{}, fmt.Errorf("%w: unexpected end of %q", ErrUnitSyntax, p.src)
	}
	t := p.next()
	switch t.kind {
	case tokIdent:
		return p.sys.Lookup(t.text)
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil || v <= 0 {
			return Unit{}, fmt.Errorf("%w: invalid scale %q in %q", ErrUnitSyntax, t.text, p.src)
		}
		return Unit{scale: v, symbol: t.text}, nil
	case tokLParen:
		u, err := p.product()
		if err != nil {
			return Unit{}, err
		}
		if p.done() || p.next().kind != tokRParen {
			return Unit{}, fmt.Errorf("%w: unbalanced parentheses in %q", ErrUnitSyntax, p.src)
		}
		return u, nil
	default:
		return Unit{}, fmt.Errorf("%w: unexpected %q in %q", ErrUnitSyntax, t.text, p.src)
	}
}
