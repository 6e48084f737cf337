package formula

import "fmt"

const (
	fieldQuantity = "quantity"
	fieldTotal    = "total"
)

type node interface {
	eval(e *evaluator) (float64, error)
	collect(names map[string]struct{})
}

type numberNode struct {
	value float64
}

// nameNode is an identifier used without a field.
type nameNode struct {
	name string
}

type fieldNode struct {
	name  string
	field string
}

type unaryNode struct {
	op      tokenKind
	operand node
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n numberNode) collect(map[string]struct{}) {}

func (n nameNode) collect(names map[string]struct{}) { names[n.name] = struct{}{} }

func (n fieldNode) collect(names map[string]struct{}) { names[n.name] = struct{}{} }

func (n unaryNode) collect(names map[string]struct{}) { n.operand.collect(names) }

func (n binaryNode) collect(names map[string]struct{}) {
	n.left.collect(names)
	n.right.collect(names)
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// parse parses the whole token stream.
//
//	expr    := term (("+" | "-") term)*
//	term    := unary (("*" | "/") unary)*
//	unary   := ("+" | "-") unary | primary
//	primary := NUMBER | IDENT ["." ("quantity" | "total")] | "(" expr ")"
func (p *parser) parse() (node, error) {
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxErrorf(p.src, tok.pos, "unexpected %s", describe(tok))
	}
	return n, nil
}

func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokPlus && tok.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.kind, left: left, right: right}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokStar && tok.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.kind, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	tok := p.peek()
	if tok.kind == tokPlus || tok.kind == tokMinus {
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tok.kind, operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return numberNode{value: tok.num}, nil
	case tokIdent:
		return p.identifier(tok)
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.kind != tokRParen {
			return nil, syntaxErrorf(p.src, closing.pos, "expected ')' but found %s", describe(closing))
		}
		return inner, nil
	default:
		return nil, syntaxErrorf(p.src, tok.pos, "unexpected %s", describe(tok))
	}
}

func (p *parser) identifier(ident token) (node, error) {
	switch p.peek().kind {
	case tokLParen:
		return nil, syntaxErrorf(p.src, ident.pos, "function calls are not allowed: %s(...)", ident.text)
	case tokDot:
		p.next()
		field := p.next()
		if field.kind != tokIdent {
			return nil, syntaxErrorf(p.src, field.pos, "expected field name after '.' but found %s", describe(field))
		}
		if field.text != fieldQuantity && field.text != fieldTotal {
			return nil, syntaxErrorf(p.src, field.pos, "unsupported field %q (only quantity and total)", field.text)
		}
		return fieldNode{name: ident.text, field: field.text}, nil
	default:
		return nameNode{name: ident.text}, nil
	}
}

func describe(tok token) string {
	switch tok.kind {
	case tokNumber, tokIdent:
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	default:
		return tok.kind.String()
	}
}
