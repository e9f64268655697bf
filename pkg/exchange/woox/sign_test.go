package woox

import "testing"

func TestSignV1SortsParams(t *testing.T) {
	got := signV1("test-secret", "1700000000000", map[string]string{
		"symbol": "PERP_BTC_USDT",
		"limit":  "100",
	})
	want := "d0d4a712b5737dc82bc050f178a5ac065309e2bccba440840baa14a92df1d817"
	if got != want {
		t.Errorf("signV1 = %s, want %s", got, want)
	}
}

func TestSignV1NoParams(t *testing.T) {
	got := signV1("test-secret", "1700000000000", nil)
	want := "26db84968839bc99fa5137cbd8331eb8fffb21f6acf0c241a4069fade6f9ea59"
	if got != want {
		t.Errorf("signV1 = %s, want %s", got, want)
	}
}

func TestSignV3(t *testing.T) {
	got := signV3("test-secret", "1700000000000", "POST", "/v3/algo/order", `{"symbol":"PERP_BTC_USDT"}`)
	want := "d01ee275245bb5533fce2121002ecd8445743b8cebcd26c5284c8eafa4ac73e2"
	if got != want {
		t.Errorf("signV3 = %s, want %s", got, want)
	}
}
