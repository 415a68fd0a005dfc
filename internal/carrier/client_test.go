package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCarrier struct {
	logins       int32
	tokenSeq     int32
	rejectTokens map[string]bool
	tracking     func(w http.ResponseWriter, r *http.Request)
	create       func(w http.ResponseWriter, r *http.Request, body map[string]interface{})
}

func (f *fakeCarrier) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ops@example.com" || body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"status":false,"message":"invalid credentials"}`)
			return
		}
		atomic.AddInt32(&f.logins, 1)
		n := atomic.AddInt32(&f.tokenSeq, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": true, "data": "token-" + string(rune('0'+n))})
	})
	authorized := func(r *http.Request) bool {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		return token != "" && !f.rejectTokens[token]
	}
	mux.HandleFunc("/shipments2", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.create(w, r, body)
	})
	mux.HandleFunc("/shipments2/track/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.tracking(w, r)
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakeCarrier) (*Client, *httptest.Server) {
	t.Helper()
	if fake.rejectTokens == nil {
		fake.rejectTokens = map[string]bool{}
	}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		Name:     "xpressbees",
		BaseURL:  server.URL,
		Email:    "ops@example.com",
		Password: "pw",
		Timeout:  2 * time.Second,
		Breaker:  BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Minute},
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client, server
}

func validShipmentRequest() ShipmentRequest {
	addr := Address{Name: "Asha", Phone: "9999999999", Line1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001"}
	return ShipmentRequest{
		OrderNumber: "ORD-42",
		OrderAmount: "499.00",
		Origin:      addr,
		Destination: addr,
		Items:       []Item{{Name: "Kurta", SKU: "KRT-1", Qty: 1, Price: "499.00"}},
	}
}

func TestNewClientRejectsMissingCredentials(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "https://carrier.example.com"}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid got %v", err)
	}
	if _, err := NewClient(Config{BaseURL: "::bad", Email: "a", Password: "b"}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for bad url got %v", err)
	}
}

func TestCreateShipmentSuccess(t *testing.T) {
	fake := &fakeCarrier{}
	fake.create = func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		if body["order_number"] != "ORD-42" || body["payment_type"] != "prepaid" {
			t.Errorf("unexpected payload: %v", body)
		}
		consignee, _ := body["consignee"].(map[string]interface{})
		if consignee["pincode"] != "411001" {
			t.Errorf("consignee pincode missing: %v", consignee)
		}
		_, _ = io.WriteString(w, `{"status":true,"data":{"awb_number":"AWB123","label":"https://label/AWB123"}}`)
	}
	client, _ := newTestClient(t, fake)

	result, err := client.CreateShipment(context.Background(), validShipmentRequest())
	if err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}
	if result.TrackingRef != "AWB123" || result.LabelRef != "https://label/AWB123" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateShipmentCarrierRejects(t *testing.T) {
	fake := &fakeCarrier{}
	fake.create = func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		_, _ = io.WriteString(w, `{"status":false,"message":"pincode not serviceable"}`)
	}
	client, _ := newTestClient(t, fake)

	_, err := client.CreateShipment(context.Background(), validShipmentRequest())
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("want ErrValidationFailed got %v", err)
	}
	if !strings.Contains(err.Error(), "pincode not serviceable") {
		t.Fatalf("carrier message should be kept: %v", err)
	}
}

func TestCreateShipmentLocalValidation(t *testing.T) {
	fake := &fakeCarrier{}
	client, _ := newTestClient(t, fake)
	req := validShipmentRequest()
	req.Destination.Pincode = ""
	if _, err := client.CreateShipment(context.Background(), req); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("want ErrValidationFailed got %v", err)
	}
	if atomic.LoadInt32(&fake.logins) != 0 {
		t.Fatalf("invalid request should not reach the carrier")
	}
}

func TestFetchTrackingParsesHistory(t *testing.T) {
	fake := &fakeCarrier{}
	fake.tracking = func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/AWB123") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"status":true,"data":{"awb_number":"AWB123","status":"delivered","history":[
			{"status_code":"DL","location":"Pune","event_time":"2026-05-02 10:00"},
			{"status_code":"IT","location":"Mumbai","event_time":"2026-05-01 18:00"}
		]}}`)
	}
	client, _ := newTestClient(t, fake)

	snapshot, err := client.FetchTracking(context.Background(), "AWB123")
	if err != nil {
		t.Fatalf("fetch tracking failed: %v", err)
	}
	if len(snapshot.Events) != 2 || snapshot.StatusCode != "DL" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	latest, ok := snapshot.Latest()
	if !ok || latest.Location != "Pune" {
		t.Fatalf("unexpected latest event: %+v", latest)
	}
}

func TestFetchTrackingNotFound(t *testing.T) {
	fake := &fakeCarrier{}
	fake.tracking = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}
	client, _ := newTestClient(t, fake)
	if _, err := client.FetchTracking(context.Background(), "AWB404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound got %v", err)
	}
}

func TestReauthenticatesOnceAfter401(t *testing.T) {
	fake := &fakeCarrier{rejectTokens: map[string]bool{"token-1": true}}
	fake.tracking = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":true,"data":{"status":"in transit","history":[]}}`)
	}
	client, _ := newTestClient(t, fake)

	if _, err := client.FetchTracking(context.Background(), "AWB1"); err != nil {
		t.Fatalf("second attempt with fresh token should succeed: %v", err)
	}
	if n := atomic.LoadInt32(&fake.logins); n != 2 {
		t.Fatalf("want 2 logins got %d", n)
	}
}

func TestAuthFailedWhenFreshTokenAlsoRejected(t *testing.T) {
	fake := &fakeCarrier{rejectTokens: map[string]bool{"token-1": true, "token-2": true, "token-3": true}}
	fake.tracking = func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("tracking handler should not be reached")
	}
	client, _ := newTestClient(t, fake)

	_, err := client.FetchTracking(context.Background(), "AWB1")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("want ErrAuthFailed got %v", err)
	}
	if n := atomic.LoadInt32(&fake.logins); n != 2 {
		t.Fatalf("retry must happen exactly once, logins=%d", n)
	}
}

func TestLoginRejectedIsAuthFailed(t *testing.T) {
	fake := &fakeCarrier{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL, Email: "ops@example.com", Password: "wrong"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, err := client.FetchTracking(context.Background(), "AWB1"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("want ErrAuthFailed got %v", err)
	}
}

func TestNetworkErrorsTripBreaker(t *testing.T) {
	fake := &fakeCarrier{}
	var calls int32
	fake.tracking = func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}
	client, _ := newTestClient(t, fake)

	for i := 0; i < 3; i++ {
		if _, err := client.FetchTracking(context.Background(), "AWB1"); !errors.Is(err, ErrNetwork) {
			t.Fatalf("attempt %d want ErrNetwork got %v", i, err)
		}
	}
	_, err := client.FetchTracking(context.Background(), "AWB1")
	if !errors.Is(err, ErrNetwork) || !strings.Contains(err.Error(), "circuit") {
		t.Fatalf("open breaker should fail fast with ErrNetwork, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("breaker should stop calls reaching the carrier, calls=%d", n)
	}
}

func TestRequestTimeout(t *testing.T) {
	fake := &fakeCarrier{}
	fake.tracking = func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}
	client, _ := newTestClient(t, fake)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := client.FetchTracking(ctx, "AWB1"); !errors.Is(err, ErrNetwork) {
		t.Fatalf("want ErrNetwork on timeout got %v", err)
	}
}
