package vm

import (
	"bufio"
	"fmt"
)

// HardcodedFunctions implements the fixed extern table: the eleven names a
// program may call without a user-defined body. Each receives the byte
// offsets (relative to the current frame, the same as any other OpCall's
// Args) of its arguments in declaration order and, for functions with a
// non-void return type, stores its result via setReturnValue before
// returning.
//
// Grounded on hardcoded_functions.cpp: print_string's "%.*s"/size+data
// convention becomes a 16-byte {ptr uint64, len uint64} slice value (see
// vm.go's writeLiteral for the matching string-literal layout); random_i32's
// xorshift generator is replaced by math/rand.Rand, seeded once per
// Interpreter rather than lazily off wall-clock time so a run is
// reproducible for a given Config.Rand.
var HardcodedFunctions = map[string]func(*Interpreter, []int) error{
	"print_i32": func(in *Interpreter, args []int) error {
		fmt.Fprintf(in.stdout, "%d", in.readInt32At(args[0]))
		return nil
	},
	"print_f32": func(in *Interpreter, args []int) error {
		fmt.Fprintf(in.stdout, "%3.2f", readValue[float32](in.slotAt(args[0], 4)))
		return nil
	},
	"print_bool": func(in *Interpreter, args []int) error {
		if in.readBoolAt(args[0]) {
			fmt.Fprint(in.stdout, "TRUE")
		} else {
			fmt.Fprint(in.stdout, "FALSE")
		}
		return nil
	},
	"print_string": func(in *Interpreter, args []int) error {
		ptr := in.readUint64At(args[0])
		length := in.readUint64At(args[0] + 8)
		if !in.validAddress(int(ptr), int(length)) {
			return fmt.Errorf("vm: print_string given an invalid slice (ptr=%d len=%d)", ptr, length)
		}
		in.stdout.Write(in.memory[ptr : ptr+length])
		return nil
	},
	"print_line": func(in *Interpreter, args []int) error {
		fmt.Fprint(in.stdout, "\n")
		return nil
	},
	"read_i32": func(in *Interpreter, args []int) error {
		fmt.Fprint(in.stdout, "Please input an i32: ")
		var v int32
		if _, err := fmt.Fscan(in.stdin, &v); err != nil {
			v = 0
		}
		discardLine(in.stdin)
		in.setReturnValue(int32(v))
		return nil
	},
	"read_f32": func(in *Interpreter, args []int) error {
		fmt.Fprint(in.stdout, "Please input an f32: ")
		var v float32
		if _, err := fmt.Fscan(in.stdin, &v); err != nil {
			v = 0
		}
		discardLine(in.stdin)
		in.setReturnValue(v)
		return nil
	},
	"read_bool": func(in *Interpreter, args []int) error {
		fmt.Fprint(in.stdout, "Please input an bool (As int): ")
		var v int32
		if _, err := fmt.Fscan(in.stdin, &v); err != nil {
			v = 0
		}
		discardLine(in.stdin)
		in.setReturnValue(v != 0)
		return nil
	},
	"random_i32": func(in *Interpreter, args []int) error {
		in.setReturnValue(in.rng.Int31())
		return nil
	},
	"malloc_size_i32": func(in *Interpreter, args []int) error {
		size := int(in.readInt32At(args[0]))
		addr, ok := in.heapAlloc(size)
		if !ok {
			return fmt.Errorf("vm: malloc_size_i32(%d): heap exhausted", size)
		}
		in.setReturnValue(uint64(addr))
		return nil
	},
	"free_pointer": func(in *Interpreter, args []int) error {
		// the bump allocator never reclaims; see DESIGN.md's ## vm entry.
		return nil
	},
}

// discardLine skips to and consumes the newline terminating the just-read
// token, mirroring cin.ignore(10000, '\n') so a badly-typed input doesn't
// desynchronise the next read_*/readline call.
func discardLine(r *bufio.Reader) {
	for {
		b, err := r.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}

// setReturnValue zero-fills the return-value scratch slot and writes v's
// little-endian bytes into its low end, ready for the matching
// OpLoadReturnValue the caller's next instruction performs.
func (in *Interpreter) setReturnValue(v any) {
	for i := range in.returnValue {
		in.returnValue[i] = 0
	}
	switch x := v.(type) {
	case int32:
		writeValue(in.returnValue[:4], x)
	case float32:
		writeValue(in.returnValue[:4], x)
	case bool:
		writeValue(in.returnValue[:1], x)
	case uint64:
		writeValue(in.returnValue[:8], x)
	}
}
