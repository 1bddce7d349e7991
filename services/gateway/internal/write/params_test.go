package write

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"testing"
)

const formType = "application/x-www-form-urlencoded"

func TestParseBodyForm(t *testing.T) {
	raw := "text=hello&post.tags=a&post.tags=b&post.title=t&web4_gas=1000&web4_deposit=5&web4_callback_url=%2Fdone&web4_other=x"
	body, err := ParseBody(formType+"; charset=utf-8", []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !body.FromForm {
		t.Fatal("expected FromForm")
	}
	var args map[string]any
	if err := json.Unmarshal(body.Args, &args); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"text": "hello",
		"post": map[string]any{
			"tags":  []any{"a", "b"},
			"title": "t",
		},
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %#v", args)
	}
	if body.Gas != 1000 {
		t.Fatalf("gas = %d", body.Gas)
	}
	if body.Deposit.String() != "5" {
		t.Fatalf("deposit = %s", body.Deposit)
	}
	if body.CallbackURL != "/done" {
		t.Fatalf("callback = %q", body.CallbackURL)
	}
}

func TestParseBodyFormBracketKeys(t *testing.T) {
	raw := "post[title]=t&post%5Bmeta%5D.lang=en&tags[]=solo&ids[]=1&ids[]=2&profile[links][site]=x"
	body, err := ParseBody(formType, []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	var args map[string]any
	if err := json.Unmarshal(body.Args, &args); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"post":    map[string]any{"title": "t", "meta": map[string]any{"lang": "en"}},
		"tags":    []any{"solo"},
		"ids":     []any{"1", "2"},
		"profile": map[string]any{"links": map[string]any{"site": "x"}},
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %#v", args)
	}
}

func TestParseBodyDefaults(t *testing.T) {
	body, err := ParseBody(formType, []byte("a=1"))
	if err != nil {
		t.Fatal(err)
	}
	if body.Gas != DefaultGas || body.Deposit.Sign() != 0 || body.CallbackURL != "" {
		t.Fatalf("unexpected defaults %+v", body)
	}
}

func TestParseBodyPassesThroughNonForm(t *testing.T) {
	raw := []byte(`{"web4_gas":"1"}`)
	body, err := ParseBody("application/json", raw)
	if err != nil {
		t.Fatal(err)
	}
	if body.FromForm || string(body.Args) != string(raw) || body.Gas != DefaultGas {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestParseBodyRejectsBadControls(t *testing.T) {
	for _, raw := range []string{
		"web4_gas=lots",
		"web4_gas=0",
		"web4_deposit=-1",
		"web4_deposit=1.5",
		"a=1&a.b=2",
		"a[b=1",
		"a[b]c=1",
		"a..b=1",
		"a[][b]=1",
	} {
		if _, err := ParseBody(formType, []byte(raw)); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("%q: expected ErrBadRequest, got %v", raw, err)
		}
	}
}

func TestSignQueryRoundTrip(t *testing.T) {
	p := PendingTransaction{
		ReceiverID:  "app.near",
		MethodName:  "post",
		Args:        []byte(`{"x":1}`),
		Gas:         DefaultGas,
		CallbackURL: "https://app.near.page/",
	}
	got, err := ParseSignQuery(SignQuery(p))
	if err != nil {
		t.Fatal(err)
	}
	if got.ReceiverID != p.ReceiverID || got.MethodName != p.MethodName || string(got.Args) != string(p.Args) {
		t.Fatalf("round trip mismatch %+v", got)
	}
	if got.Gas != p.Gas || got.Deposit.Sign() != 0 || got.CallbackURL != p.CallbackURL {
		t.Fatalf("round trip mismatch %+v", got)
	}
}

func TestParseSignQueryErrors(t *testing.T) {
	q := url.Values{}
	if _, err := ParseSignQuery(q); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("missing contract: %v", err)
	}
	q.Set("web4_contract_id", "app.near")
	q.Set("web4_method_name", "m")
	q.Set("web4_args", "%%%")
	if _, err := ParseSignQuery(q); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("bad args: %v", err)
	}
	q.Set("web4_args", base64.StdEncoding.EncodeToString([]byte("{}")))
	if _, err := ParseSignQuery(q); err != nil {
		t.Fatalf("valid query: %v", err)
	}
}
