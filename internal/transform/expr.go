package transform

import (
	"fmt"
	"strconv"
	"unicode"
)

// 受限算术表达式求值器
//
// 规则定义来自半可信配置，calculate 操作的公式绝不能交给
// 通用代码求值器执行。这里只支持 + - * / 括号和命名变量，
// 语法之外的任何输入都会报错。

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenLParen
	tokenRParen
	tokenEOF
)

type token struct {
	kind  tokenKind
	value string
	num   float64
}

// EvaluateExpression 求值算术表达式
// vars 为变量名到数值的映射，引用未定义变量时报错
func EvaluateExpression(formula string, vars map[string]float64) (float64, error) {
	tokens, err := tokenize(formula)
	if err != nil {
		return 0, err
	}

	p := &exprParser{tokens: tokens, vars: vars}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.peek().kind != tokenEOF {
		return 0, fmt.Errorf("unexpected token %q in expression", p.peek().value)
	}

	return result, nil
}

func tokenize(formula string) ([]token, error) {
	var tokens []token
	runes := []rune(formula)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+':
			tokens = append(tokens, token{kind: tokenPlus, value: "+"})
			i++
		case r == '-':
			tokens = append(tokens, token{kind: tokenMinus, value: "-"})
			i++
		case r == '*':
			tokens = append(tokens, token{kind: tokenStar, value: "*"})
			i++
		case r == '/':
			tokens = append(tokens, token{kind: tokenSlash, value: "/"})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenLParen, value: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenRParen, value: ")"})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q in expression", text)
			}
			tokens = append(tokens, token{kind: tokenNumber, value: text, num: num})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, value: string(runes[start:i])})
		default:
			return nil, fmt.Errorf("unexpected character %q in expression", string(r))
		}
	}

	tokens = append(tokens, token{kind: tokenEOF})
	return tokens, nil
}

type exprParser struct {
	tokens []token
	pos    int
	vars   map[string]float64
}

func (p *exprParser) peek() token {
	return p.tokens[p.pos]
}

func (p *exprParser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

// parseExpr → term (('+' | '-') term)*
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}

	for {
		switch p.peek().kind {
		case tokenPlus:
			p.next()
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case tokenMinus:
			p.next()
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

// parseTerm → unary (('*' | '/') unary)*
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		switch p.peek().kind {
		case tokenStar:
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case tokenSlash:
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero in expression")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

// parseUnary → '-' unary | primary
func (p *exprParser) parseUnary() (float64, error) {
	if p.peek().kind == tokenMinus {
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

// parsePrimary → number | ident | '(' expr ')'
func (p *exprParser) parsePrimary() (float64, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber:
		return t.num, nil
	case tokenIdent:
		v, ok := p.vars[t.value]
		if !ok {
			return 0, fmt.Errorf("undefined variable %q in expression", t.value)
		}
		return v, nil
	case tokenLParen:
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.next().kind != tokenRParen {
			return 0, fmt.Errorf("missing closing parenthesis in expression")
		}
		return v, nil
	case tokenEOF:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected token %q in expression", t.value)
	}
}

// CheckFormula 规则配置载入时的公式预检（只做词法检查，不求值）
func CheckFormula(formula string) error {
	_, err := tokenize(formula)
	return err
}
