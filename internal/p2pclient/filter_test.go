package p2pclient

import "testing"

func TestCompileOperatorHash(t *testing.T) {
	op, err := CompileOperator("hash")
	if err != nil {
		t.Fatalf("CompileOperator: %v", err)
	}
	if op.Kind != OperatorHash {
		t.Fatalf("expected OperatorHash, got %v", op.Kind)
	}
}

func TestCompileOperatorByteSlice(t *testing.T) {
	op, err := CompileOperator(":-4,2")
	if err != nil {
		t.Fatalf("CompileOperator: %v", err)
	}
	if op.Kind != OperatorByteSlice || op.SliceStart != -4 || op.SliceLength != 2 {
		t.Fatalf("unexpected operator: %+v", op)
	}
}

func TestCompileOperatorBitwise(t *testing.T) {
	op, err := CompileOperator("& 255")
	if err != nil {
		t.Fatalf("CompileOperator: %v", err)
	}
	if op.Kind != OperatorBitwise || op.BitOp != BitAnd || op.BitOperand != 255 {
		t.Fatalf("unexpected operator: %+v", op)
	}
}

func TestFilterExprEQ(t *testing.T) {
	expr, err := Compile("modelType", CmpEQ, []byte{1, 2, 3}, "")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !expr.Match([]byte{1, 2, 3}, true) {
		t.Fatal("expected match")
	}
	if expr.Match([]byte{1, 2, 4}, true) {
		t.Fatal("expected no match")
	}
}

func TestFilterExprIsNull(t *testing.T) {
	expr, err := Compile("refId", CmpIsNull, nil, "")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !expr.Match(nil, false) {
		t.Fatal("expected match on absent field")
	}
	if expr.Match([]byte{1}, true) {
		t.Fatal("expected no match on present field")
	}
}

func TestFilterExprByteSliceFromEnd(t *testing.T) {
	expr, err := Compile("owner", CmpEQ, []byte{0xAA, 0xBB}, ":-2")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	raw := []byte{0x01, 0x02, 0xAA, 0xBB}
	if !expr.Match(raw, true) {
		t.Fatal("expected match on last two bytes")
	}
}

func TestFilterExprBitwiseAnd(t *testing.T) {
	expr, err := Compile("flags", CmpEQ, []byte{0x00, 0x00, 0x00, 0x0F}, "& 15")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !expr.Match([]byte{0x00, 0x00, 0x00, 0xFF}, true) {
		t.Fatal("expected 0xFF & 0x0F == 0x0F to match")
	}
}

func TestFilterExprHashPrefixNE(t *testing.T) {
	expr, err := Compile("id1", CmpNE, []byte{0xDE, 0xAD}, "hash")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if expr.Match([]byte{0xDE, 0xAD, 0xBE, 0xEF}, true) {
		t.Fatal("expected no match: prefix equals value, NE should be false")
	}
	if !expr.Match([]byte{0xBE, 0xEF}, true) {
		t.Fatal("expected match: prefix differs, NE should be true")
	}
}

func TestCompileOperatorUnrecognized(t *testing.T) {
	if _, err := CompileOperator("bogus"); err == nil {
		t.Fatal("expected error for unrecognized operator")
	}
}
