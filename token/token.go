// Package token defines the lexical token kinds of the Upp language.
package token

// Kind is the closed set of token kinds a lexer can produce.
type Kind int

const (
	IDENTIFIER Kind = iota
	KEYWORD
	LITERAL
	OPERATOR
	PARENTHESIS
	INVALID
	COMMENT
)

func (k Kind) String() string {
	switch k {
	case IDENTIFIER:
		return "IDENTIFIER"
	case KEYWORD:
		return "KEYWORD"
	case LITERAL:
		return "LITERAL"
	case OPERATOR:
		return "OPERATOR"
	case PARENTHESIS:
		return "PARENTHESIS"
	case INVALID:
		return "INVALID"
	case COMMENT:
		return "COMMENT"
	default:
		return "UNKNOWN"
	}
}

// Keyword enumerates the fixed set of reserved words.
type Keyword int

const (
	IF Keyword = iota
	ELSE
	WHILE
	RETURN
	BREAK
	CONTINUE
	DEFER
	SWITCH
	CASE
	DEFAULT
	MODULE
	STRUCT
	UNION
	C_UNION
	ENUM
	NEW
	DELETE
	CAST
	CAST_PTR
	CAST_RAW
	BAKE
	EXTERN
	IMPORT
	AS
	CONTEXT
	FOR
	IN
	CONST
	MUT
)

var keywords = map[string]Keyword{
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
	"defer":    DEFER,
	"switch":   SWITCH,
	"case":     CASE,
	"default":  DEFAULT,
	"module":   MODULE,
	"struct":   STRUCT,
	"union":    UNION,
	"c_union":  C_UNION,
	"enum":     ENUM,
	"new":      NEW,
	"delete":   DELETE,
	"cast":     CAST,
	"cast_ptr": CAST_PTR,
	"cast_raw": CAST_RAW,
	"bake":     BAKE,
	"extern":   EXTERN,
	"import":   IMPORT,
	"as":       AS,
	"context":  CONTEXT,
	"for":      FOR,
	"in":       IN,
	"const":    CONST,
	"mut":      MUT,
}

var keywordNames = func() map[Keyword]string {
	m := make(map[Keyword]string, len(keywords))
	for name, kw := range keywords {
		m[kw] = name
	}
	return m
}()

// LookupKeyword returns the keyword value for ident and true if ident is a
// reserved word.
func LookupKeyword(ident string) (Keyword, bool) {
	kw, ok := keywords[ident]
	return kw, ok
}

func (k Keyword) String() string {
	if name, ok := keywordNames[k]; ok {
		return name
	}
	return "<unknown keyword>"
}

// Operator enumerates the fixed set of operators, tokenised by longest
// match.
type Operator int

const (
	PLUS Operator = iota
	MINUS
	STAR
	SLASH
	PERCENT
	AMPERSAND
	PIPE
	CARET
	BANG
	ASSIGN
	EQ
	NEQ
	LT
	GT
	LTE
	GTE
	AND_AND
	OR_OR
	ARROW        // ->
	FAT_ARROW    // =>
	TILDE        // ~  (symbol path separator, A~B~c)
	TILDE_PTR    // ~*  pointer symbol-path form
	TILDE_PTR_PTR // ~**
	DOT_GT       // .>
	DOLLAR       // $  comptime parameter sigil
	COLON
	DOUBLE_COLON // ::
	DEFINE_INFER // :=
	PLUS_ASSIGN
	MINUS_ASSIGN
	STAR_ASSIGN
	SLASH_ASSIGN
	PERCENT_ASSIGN
	PTR_EQ       // *==
	PTR_NEQ      // *!=
	DEFINE_PTR   // :=*
	DEFINE_TILDE // :=~
	ASSIGN_STAR  // =*
	ASSIGN_TILDE // =~
	COMMA
	DOT
	UNDERSCORE
)

// OperatorEntry pairs an operator's source text with its tag, ordered so
// that a greedy longest-match scan over entries sharing a leading rune finds
// the correct operator.
type OperatorEntry struct {
	Text string
	Op   Operator
}

var operatorTable = []OperatorEntry{
	{":=*", DEFINE_PTR},
	{":=~", DEFINE_TILDE},
	{"~**", TILDE_PTR_PTR},
	{"~*", TILDE_PTR},
	{"*==", PTR_EQ},
	{"*!=", PTR_NEQ},
	{"::", DOUBLE_COLON},
	{":=", DEFINE_INFER},
	{"==", EQ},
	{"!=", NEQ},
	{"<=", LTE},
	{">=", GTE},
	{"&&", AND_AND},
	{"||", OR_OR},
	{"->", ARROW},
	{"=>", FAT_ARROW},
	{".>", DOT_GT},
	{"=*", ASSIGN_STAR},
	{"=~", ASSIGN_TILDE},
	{"+=", PLUS_ASSIGN},
	{"-=", MINUS_ASSIGN},
	{"*=", STAR_ASSIGN},
	{"/=", SLASH_ASSIGN},
	{"%=", PERCENT_ASSIGN},
	{"+", PLUS},
	{"-", MINUS},
	{"*", STAR},
	{"/", SLASH},
	{"%", PERCENT},
	{"&", AMPERSAND},
	{"|", PIPE},
	{"^", CARET},
	{"!", BANG},
	{"=", ASSIGN},
	{"<", LT},
	{">", GT},
	{"~", TILDE},
	{"$", DOLLAR},
	{":", COLON},
	{",", COMMA},
	{".", DOT},
	{"_", UNDERSCORE},
}

// OperatorTable returns the longest-match operator table consulted by the
// lexer.
func OperatorTable() []OperatorEntry {
	return operatorTable
}

func (o Operator) String() string {
	for _, e := range operatorTable {
		if e.Op == o {
			return e.Text
		}
	}
	return "<unknown operator>"
}

// ParenKind distinguishes the three parenthesis families.
type ParenKind int

const (
	ROUND ParenKind = iota
	SQUARE
	CURLY
)

// LiteralKind tags the payload carried by a LITERAL token.
type LiteralKind int

const (
	LIT_INTEGER LiteralKind = iota
	LIT_FLOAT
	LIT_BOOLEAN
	LIT_STRING
	LIT_NULL
)

// Literal is the tagged-union payload of a LITERAL token.
type Literal struct {
	Kind    LiteralKind
	Integer int64
	Float   float64
	Boolean bool
	String  string // interned via the process-wide pool
}

// Parenthesis is the payload of a PARENTHESIS token.
type Parenthesis struct {
	Kind   ParenKind
	IsOpen bool
}

// Token is a single lexical token produced by the lexer.
//
// Exactly one of Identifier/Keyword/Literal/Operator/Paren is meaningful,
// selected by Kind; the rest carry zero values.
type Token struct {
	Kind Kind

	StartChar int
	EndChar   int

	Identifier *string // interned handle; pointer-equal for equal identifiers
	Keyword    Keyword
	Literal    Literal
	Operator   Operator
	Paren      Parenthesis

	// Text is the raw source text of the token; always populated, used for
	// error messages and INVALID token diagnostics.
	Text string
}
