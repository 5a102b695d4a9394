// Package federation implements the declarative query engine: a
// hand-written parser for a strict SQL subset, a keyword planner mapping
// table names onto backing sources, and a parallel dispatcher that stamps
// every returned row with its origin.
package federation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Limits.
const (
	DefaultLimit = 100
	MaxLimit     = 10_000
)

// ErrParse wraps every syntax error so callers can map it to 422.
var ErrParse = errors.New("federation: query syntax error")

// Predicate is one WHERE clause: <field> <op> <literal>. Value is a
// float64 when the literal parses as a number, otherwise a string.
type Predicate struct {
	Field string
	Op    string // = != > >= < <= LIKE
	Value any
}

// Query is the parsed form of the SQL-subset dialect.
type Query struct {
	Text      string
	Select    []string // nil or ["*"] means all columns
	From      string
	Extra     []string // tables referenced by JOIN/UNION; widen the source set
	Where     []Predicate
	OrderBy   string
	OrderDesc bool
	Limit     int
}

// token kinds
type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokComma
	tokStar
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.input[l.pos]
	switch {
	case c == ',':
		l.pos++
		return token{tokComma, ",", start}, nil
	case c == '*':
		l.pos++
		return token{tokStar, "*", start}, nil
	case c == '(':
		l.pos++
		return token{tokLParen, "(", start}, nil
	case c == ')':
		l.pos++
		return token{tokRParen, ")", start}, nil
	case c == '=':
		l.pos++
		return token{tokOp, "=", start}, nil
	case c == '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{tokOp, "!=", start}, nil
		}
		return token{}, fmt.Errorf("%w: unexpected '!' at %d", ErrParse, start)
	case c == '<', c == '>':
		l.pos++
		op := string(c)
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			op += "="
			l.pos++
		}
		return token{tokOp, op, start}, nil
	case c == '\'' || c == '"':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) && l.input[l.pos] != quote {
			sb.WriteByte(l.input[l.pos])
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, fmt.Errorf("%w: unterminated string at %d", ErrParse, start)
		}
		l.pos++
		return token{tokString, sb.String(), start}, nil
	case unicode.IsDigit(rune(c)) || (c == '-' && l.pos+1 < len(l.input) && unicode.IsDigit(rune(l.input[l.pos+1]))):
		l.pos++
		for l.pos < len(l.input) && (unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{tokNumber, l.input[start:l.pos], start}, nil
	case unicode.IsLetter(rune(c)) || c == '_':
		for l.pos < len(l.input) && (unicode.IsLetter(rune(l.input[l.pos])) ||
			unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '_' || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{tokIdent, l.input[start:l.pos], start}, nil
	default:
		return token{}, fmt.Errorf("%w: unexpected character %q at %d", ErrParse, c, start)
	}
}

type parser struct {
	tokens []token
	idx    int
}

func (p *parser) peek() token { return p.tokens[p.idx] }
func (p *parser) advance() token {
	t := p.tokens[p.idx]
	if p.idx < len(p.tokens)-1 {
		p.idx++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.keyword(kw) {
		return fmt.Errorf("%w: expected %s near position %d", ErrParse, kw, p.peek().pos)
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", fmt.Errorf("%w: expected identifier near position %d", ErrParse, t.pos)
	}
	p.advance()
	return t.text, nil
}

// Parse parses a query in the SELECT/FROM/WHERE/ORDER BY/LIMIT subset,
// with JOIN and UNION references admitted only to widen the source set.
// Anything outside the subset is rejected.
func Parse(text string) (*Query, error) {
	lx := &lexer{input: text}
	var tokens []token
	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
		if t.kind == tokEOF {
			break
		}
	}
	p := &parser{tokens: tokens}
	q := &Query{Text: text, Limit: DefaultLimit}
	if err := p.parseSelect(q); err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: trailing input near position %d", ErrParse, p.peek().pos)
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q, nil
}

func (p *parser) parseSelect(q *Query) error {
	if err := p.expectKeyword("SELECT"); err != nil {
		return err
	}
	if err := p.parseProjection(q); err != nil {
		return err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return err
	}
	from, err := p.expectIdent()
	if err != nil {
		return err
	}
	if q.From == "" {
		q.From = from
	} else {
		q.Extra = append(q.Extra, from)
	}

	for {
		switch {
		case p.keyword("JOIN"), p.joinPrefix():
			table, err := p.expectIdent()
			if err != nil {
				return err
			}
			q.Extra = append(q.Extra, table)
			if p.keyword("ON") {
				// Join conditions are accepted syntactically and ignored:
				// sources are widened, real joins are not computed.
				if err := p.skipJoinCondition(); err != nil {
					return err
				}
			}
		case p.keyword("WHERE"):
			if err := p.parseWhere(q); err != nil {
				return err
			}
		case p.keyword("ORDER"):
			if err := p.expectKeyword("BY"); err != nil {
				return err
			}
			field, err := p.expectIdent()
			if err != nil {
				return err
			}
			q.OrderBy = stripTable(field)
			if p.keyword("DESC") {
				q.OrderDesc = true
			} else {
				p.keyword("ASC")
			}
		case p.keyword("LIMIT"):
			t := p.peek()
			if t.kind != tokNumber {
				return fmt.Errorf("%w: LIMIT expects a number near position %d", ErrParse, t.pos)
			}
			p.advance()
			n, err := strconv.Atoi(t.text)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: bad LIMIT %q", ErrParse, t.text)
			}
			q.Limit = n
		case p.keyword("UNION"):
			p.keyword("ALL")
			// A UNION branch is a nested select whose FROM widens the plan.
			if err := p.parseSelect(q); err != nil {
				return err
			}
			return nil
		default:
			return nil
		}
	}
}

// joinPrefix consumes INNER/LEFT/RIGHT/OUTER JOIN spellings.
func (p *parser) joinPrefix() bool {
	for _, qualifier := range []string{"INNER", "LEFT", "RIGHT", "OUTER"} {
		if p.keyword(qualifier) {
			p.keyword("OUTER")
			return p.keyword("JOIN")
		}
	}
	return false
}

func (p *parser) skipJoinCondition() error {
	if _, err := p.expectIdent(); err != nil {
		return err
	}
	if p.peek().kind != tokOp {
		return fmt.Errorf("%w: expected operator in join condition", ErrParse)
	}
	p.advance()
	if _, err := p.expectIdent(); err != nil {
		return err
	}
	return nil
}

func (p *parser) parseProjection(q *Query) error {
	if p.peek().kind == tokStar {
		p.advance()
		q.Select = nil
		return nil
	}
	for {
		field, err := p.expectIdent()
		if err != nil {
			return err
		}
		q.Select = append(q.Select, stripTable(field))
		if p.peek().kind != tokComma {
			return nil
		}
		p.advance()
	}
}

func (p *parser) parseWhere(q *Query) error {
	for {
		field, err := p.expectIdent()
		if err != nil {
			return err
		}
		var op string
		t := p.peek()
		switch {
		case t.kind == tokOp:
			op = t.text
			p.advance()
		case t.kind == tokIdent && strings.EqualFold(t.text, "LIKE"):
			op = "LIKE"
			p.advance()
		default:
			return fmt.Errorf("%w: expected comparison operator near position %d", ErrParse, t.pos)
		}

		lit := p.peek()
		var value any
		switch lit.kind {
		case tokNumber:
			f, err := strconv.ParseFloat(lit.text, 64)
			if err != nil {
				return fmt.Errorf("%w: bad numeric literal %q", ErrParse, lit.text)
			}
			value = f
		case tokString, tokIdent:
			value = lit.text
		default:
			return fmt.Errorf("%w: expected literal near position %d", ErrParse, lit.pos)
		}
		p.advance()

		q.Where = append(q.Where, Predicate{Field: stripTable(field), Op: op, Value: value})
		if !p.keyword("AND") {
			return nil
		}
	}
}

func stripTable(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[i+1:]
	}
	return field
}
