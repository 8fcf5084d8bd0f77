package credentials

import (
	"strings"
	"testing"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	first, err := Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct salts to produce distinct records")
	}
	if !Verify("hunter2", first) || !Verify("hunter2", second) {
		t.Fatalf("records do not verify against their own password")
	}
	if Verify("hunter3", first) {
		t.Fatalf("wrong password verified")
	}
}

func TestVerifyCorruptedKey(t *testing.T) {
	record, err := Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	// Flip one character of the derived key segment.
	last := record[len(record)-1]
	replacement := byte('A')
	if last == replacement {
		replacement = 'B'
	}
	corrupted := record[:len(record)-1] + string(replacement)
	if Verify("correct horse battery staple", corrupted) {
		t.Fatalf("corrupted record verified")
	}
}

func TestVerifyMalformedRecords(t *testing.T) {
	for _, record := range []string{
		"",
		"not-a-record",
		"pbkdf2-sha256$100000$onlythreeparts",
		"pbkdf2-sha256$0$c2FsdA$a2V5",
		"pbkdf2-sha256$abc$c2FsdA$a2V5",
		"bcrypt$100000$c2FsdA$a2V5",
		"pbkdf2-sha256$100000$!!!$a2V5",
		"pbkdf2-sha256$100000$c2FsdA$!!!",
	} {
		if Verify("whatever", record) {
			t.Fatalf("malformed record %q verified", record)
		}
	}
}

func TestIterationCountIsTunable(t *testing.T) {
	// A record written with an older, lower iteration count must keep
	// verifying after the default is raised.
	old := encode("legacy", []byte("0123456789abcdef"), DefaultIterations/10)
	if !Verify("legacy", old) {
		t.Fatalf("legacy record no longer verifies")
	}
	if !NeedsRehash(old) {
		t.Fatalf("legacy record should need a rehash")
	}

	current, err := Hash("fresh")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if NeedsRehash(current) {
		t.Fatalf("fresh record should not need a rehash")
	}
	if !strings.Contains(current, "$100000$") {
		t.Fatalf("expected default iteration count in record, got %s", current)
	}
}

func TestNeedsRehashMalformed(t *testing.T) {
	if !NeedsRehash("garbage") {
		t.Fatalf("malformed record should be flagged for rehash")
	}
}
