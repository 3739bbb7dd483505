package token

import "sync"

// Pool is an insert-only identifier/string intern table.
// Equality of two Identifier payloads produced by the same Pool is pointer
// equality.
type Pool struct {
	mu      sync.Mutex
	strings map[string]*string
}

// NewPool creates an empty intern pool. A pool per compilation keeps
// compilations isolated from each other; callers that want the shared,
// editor-wide pool should hold a single Pool and pass it to every Lexer.
func NewPool() *Pool {
	return &Pool{strings: make(map[string]*string)}
}

// Intern returns the canonical *string for s, allocating one on first use.
func (p *Pool) Intern(s string) *string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if handle, ok := p.strings[s]; ok {
		return handle
	}
	handle := new(string)
	*handle = s
	p.strings[s] = handle
	return handle
}

// Len reports the number of distinct interned strings, mostly useful for
// diagnostics/tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.strings)
}
