package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.0100001", "0.01", false},
		{" 1.5 ", "1.5", false},
		{"2.00005", "2.0001", false},
		{"10", "10", false},
		{"0.00004", "", true},
		{"0", "", true},
		{"-1", "", true},
		{"abc", "", true},
		{"", "", true},
		{"NaN", "", true},
		{"Infinity", "", true},
		{"-Infinity", "", true},
		{"1e400", "", true},
		{"1e20000000", "", true},
		{"1e-20000000", "", true},
		{"9.9e308", "", true},
		{"1" + strings.Repeat("0", 80), "", true},
		{"1e3", "1000", false},
		{"1e308", "1" + strings.Repeat("0", 308), false},
	}
	for _, tc := range cases {
		name := tc.in
		if len(name) > 20 {
			name = name[:20]
		}
		t.Run(name, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("err = %v, want ErrInvalidAmount", err)
				}
				return
			}
			if got.String() != tc.want {
				t.Errorf("amount = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAmountJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		A Amount `json:"amountSol"`
	}{MustAmount("1.25")})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"amountSol":1.25}` {
		t.Fatalf("json = %s", raw)
	}

	for _, in := range []string{`1.25`, `"1.25"`} {
		var a Amount
		if err := json.Unmarshal([]byte(in), &a); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if a.String() != "1.25" {
			t.Errorf("%s -> %s", in, a)
		}
	}

	for _, in := range []string{`1e400`, `"1e20000000"`} {
		var a Amount
		if err := json.Unmarshal([]byte(in), &a); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("%s: err = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     error
	}{
		{StatusDraft, StatusFunded, nil},
		{StatusDraft, StatusReleased, ErrInvalidTransition},
		{StatusFunded, StatusReleased, nil},
		{StatusFunded, StatusRefunded, nil},
		{StatusFunded, StatusDraft, ErrInvalidTransition},
		{StatusReleased, StatusRefunded, ErrAlreadySettled},
		{StatusRefunded, StatusFunded, ErrAlreadySettled},
	}
	for _, tc := range cases {
		v := Vault{Status: tc.from}
		err := v.CanTransitionTo(tc.to)
		if !errors.Is(err, tc.want) && !(err == nil && tc.want == nil) {
			t.Errorf("%s -> %s: err = %v, want %v", tc.from, tc.to, err, tc.want)
		}
	}

	for _, st := range []Status{StatusDraft, StatusReleased, StatusRefunded} {
		if err := (&Vault{Status: st}).CanDelete(); err != nil {
			t.Errorf("delete %s: %v", st, err)
		}
	}
	if err := (&Vault{Status: StatusFunded}).CanDelete(); !errors.Is(err, ErrFundsLocked) {
		t.Errorf("delete funded: %v", err)
	}
}

func TestParseStatusAndRole(t *testing.T) {
	if s, err := ParseStatus("Funded"); err != nil || s != StatusFunded {
		t.Errorf("ParseStatus = %q, %v", s, err)
	}
	if _, err := ParseStatus("lost"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("ParseStatus(lost) = %v", err)
	}
	if r, err := ParseRole(" Arbitrator "); err != nil || r != RoleArbitrator {
		t.Errorf("ParseRole = %q, %v", r, err)
	}
	if _, err := ParseRole("admin"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("ParseRole(admin) = %v", err)
	}
}

func TestVaultJSONShape(t *testing.T) {
	v := Vault{ID: "vault_1", CreatedAt: 1700000000000, Amount: MustAmount("0.5"), Counterparty: "abc", Status: StatusDraft}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"vault_1","createdAt":1700000000000,"amountSol":0.5,"counterparty":"abc","status":"draft"}`
	if string(raw) != want {
		t.Fatalf("json = %s\nwant  %s", raw, want)
	}
}

func TestShortForms(t *testing.T) {
	if got := ShortID("vault_0123456789abcdef"); got != "vault_0123…" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("abc"); got != "abc…" {
		t.Errorf("ShortID(short) = %q", got)
	}
	if got := ShortAddr("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"); got != "9xQe…VFin" {
		t.Errorf("ShortAddr = %q", got)
	}
	if got := ShortAddr("abc123"); got != "abc123" {
		t.Errorf("ShortAddr(short) = %q", got)
	}
	if id := NewVaultID(); !strings.HasPrefix(id, "vault_") || len(id) != 38 {
		t.Errorf("NewVaultID = %q", id)
	}
}

func TestSearchTextIncludesStatus(t *testing.T) {
	v := Vault{ID: "vault_X", Counterparty: "ABC", Memo: "Rent", Status: StatusFunded}
	if got := v.SearchText(); got != "vault_x abc rent funded" {
		t.Errorf("SearchText = %q", got)
	}
}

func TestExportSnapshotJSON(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("X", 3600))

	raw, err := json.Marshal(ExportSnapshot{Type: ExportActivity, ExportedAt: at, RoleContext: RoleCreator})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"activity_log","exportedAt":"2026-01-02T02:04:05.006Z","roleContext":"creator","events":[]}`
	if string(raw) != want {
		t.Fatalf("json = %s\nwant  %s", raw, want)
	}

	v := Vault{ID: "vault_1", Amount: MustAmount("1"), Status: StatusDraft}
	raw, err = json.Marshal(ExportSnapshot{Type: ExportVault, ExportedAt: at, RoleContext: RoleArbitrator, Vault: &v})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"vault":{"id":"vault_1"`) || strings.Contains(string(raw), "events") {
		t.Fatalf("json = %s", raw)
	}
}

func TestActivityEntryFailed(t *testing.T) {
	if !(ActivityEntry{Message: "✖ Select a vault first."}).Failed() {
		t.Error("failure marker not detected")
	}
	if (ActivityEntry{Message: "✓ Draft created"}).Failed() {
		t.Error("success tagged as failure")
	}
}
