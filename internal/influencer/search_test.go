package influencer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, nil)
	require.NoError(t, err)
	return client
}

func TestFallback_DeclaredOrder(t *testing.T) {
	list := Fallback()
	require.Len(t, list, 4)
	ids := []string{list[0].ID, list[1].ID, list[2].ID, list[3].ID}
	require.Equal(t, []string{"inf1", "inf2", "inf3", "inf4"}, ids)
	require.Equal(t, "Fashionista Flo", list[0].Name)
	require.Equal(t, "Traveler Tom", list[3].Name)

	list[0].Name = "mutated"
	require.Equal(t, "Fashionista Flo", Fallback()[0].Name)
}

func TestSummaries(t *testing.T) {
	got := Summaries(Fallback()[:1])
	require.Equal(t, []Summary{{Name: "Fashionista Flo", Niche: "Fashion, Lifestyle", Followers: "1.2M"}}, got)
}

func TestClient_Search_SendsQuery(t *testing.T) {
	records := []Candidate{
		{ID: "z9", Name: "Zed", Platform: "Twitch", Followers: "10K", Niche: "Gaming", Avatar: "/z.png"},
		{ID: "a1", Name: "Amy", Platform: "YouTube", Followers: "2M", Niche: "Tech", Avatar: "/a.png"},
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var query Query
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		require.Equal(t, Query{Industry: "Tech", Goals: "Awareness", Budget: "$10,000"}, query)
		_ = json.NewEncoder(w).Encode(records)
	})

	got, err := client.Search(context.Background(), Query{Industry: "Tech", Goals: "Awareness", Budget: "$10,000"})
	require.NoError(t, err)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("records must pass through verbatim (-want +got):\n%s", diff)
	}
}

func TestClient_Search_RelaysUntypedRecords(t *testing.T) {
	body := `[{"id":"a1","name":"Amy","platform":"YouTube","followers":120000,"niche":"Tech","avatar":"/a.png","engagement":"4%"}]`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	got, err := SearchOrFallback(context.Background(), client, Query{Industry: "Tech"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a1", got[0].ID)
	require.Equal(t, "120000", got[0].Followers)
	require.Equal(t, []Summary{{Name: "Amy", Niche: "Tech", Followers: "120000"}}, Summaries(got))

	encoded, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, body, string(encoded))

	var again []Candidate
	require.NoError(t, json.Unmarshal(encoded, &again))
	require.Equal(t, got, again)
}

func TestClient_Search_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		reason string
	}{
		{name: "non-2xx", status: http.StatusBadGateway, body: "upstream down", reason: "status"},
		{name: "object body", status: http.StatusOK, body: `{"results":[]}`, reason: "invalid"},
		{name: "not json", status: http.StatusOK, body: `<html>`, reason: "invalid"},
		{name: "array of scalars", status: http.StatusOK, body: `[1,2,3]`, reason: "invalid"},
		{name: "empty array", status: http.StatusOK, body: `[]`, reason: "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Search(context.Background(), Query{})
			require.Error(t, err)
			require.Equal(t, tc.reason, FallbackReason(err))

			got, fallbackErr := SearchOrFallback(context.Background(), client, Query{})
			require.Error(t, fallbackErr)
			require.Equal(t, Fallback(), got)
		})
	}
}

func TestClient_Search_StatusErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	_, err := client.Search(context.Background(), Query{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	require.Equal(t, "influencer API error: 429 - rate limited", statusErr.Error())
}

func TestClient_Search_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(url, nil)
	require.NoError(t, err)
	got, fallbackErr := SearchOrFallback(context.Background(), client, Query{Industry: "Tech"})
	require.Error(t, fallbackErr)
	require.Equal(t, "transport", FallbackReason(fallbackErr))
	require.Equal(t, Fallback(), got)
}

type stubSearcher struct {
	candidates []Candidate
	err        error
}

func (s stubSearcher) Search(ctx context.Context, query Query) ([]Candidate, error) {
	return s.candidates, s.err
}

func TestSearchOrFallback(t *testing.T) {
	got, err := SearchOrFallback(context.Background(), nil, Query{})
	require.Error(t, err)
	require.Equal(t, Fallback(), got)

	got, err = SearchOrFallback(context.Background(), stubSearcher{}, Query{})
	require.ErrorIs(t, err, ErrNoResults)
	require.Equal(t, Fallback(), got)

	one := []Candidate{{ID: "solo"}}
	got, err = SearchOrFallback(context.Background(), stubSearcher{candidates: one}, Query{})
	require.NoError(t, err)
	require.Equal(t, one, got)
}

func TestFallbackReason(t *testing.T) {
	require.Equal(t, "", FallbackReason(nil))
	require.Equal(t, "cancelled", FallbackReason(context.Canceled))
	require.Equal(t, "transport", FallbackReason(errors.New("dial tcp: refused")))
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient("  ", nil)
	require.Error(t, err)
}
