package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianyu2019/firedoor-extractor/pkg/errs"
	"github.com/qianyu2019/firedoor-extractor/pkg/httpclient"
)

func newTestClient(url string) *Client {
	hc := httpclient.New(httpclient.WithMaxRetries(0), httpclient.WithBaseDelay(time.Millisecond))
	return NewClient(Config{URL: url, Model: "glm-4-plus", APIKey: "sk-test"}, hc)
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func TestExtractRecord(t *testing.T) {
	content := `{
		"door_no": "FHM-101",
		"door_type": "A",
		"opening_size": "1490*2300",
		"leaf_size": "1460*2300",
		"hardware_group": "HW-08a",
		"hardware": [
			{"name": "①Door Closer", "brand": "GEZE", "model": "TS-4000", "qty": 1},
			{"name": "Hinge", "brand": "Hafele", "model": "H-2", "qty": "four"}
		],
		"finish_color": {"push_side": "RAL 7035", "pull_side": ""}
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "glm-4-plus", req["model"])
		assert.Equal(t, float64(0), req["temperature"])
		assert.Equal(t, false, req["do_sample"])
		rf := req["response_format"].(map[string]interface{})
		assert.Equal(t, "json_object", rf["type"])

		msgs := req["messages"].([]interface{})
		require.Len(t, msgs, 2)
		system := msgs[0].(map[string]interface{})
		assert.Equal(t, "system", system["role"])
		assert.Contains(t, system["content"], "hardware configuration(HW-08a)")
		user := msgs[1].(map[string]interface{})
		assert.Equal(t, "user", user["role"])
		assert.Contains(t, user["content"], "| markdown table |")

		fmt.Fprint(w, completionBody(content))
	}))
	defer srv.Close()

	rec, err := newTestClient(srv.URL).ExtractRecord(context.Background(), "| markdown table |")
	require.NoError(t, err)
	assert.Equal(t, "FHM-101", rec.DoorNo)
	assert.Equal(t, "1490*2300", rec.OpeningSize)
	assert.Equal(t, "HW-08a", rec.HardwareGroup)
	// normalization applied: ordinal stripped, indeterminate qty dropped
	require.Len(t, rec.Hardware, 1)
	assert.Equal(t, "Door Closer", rec.Hardware[0].Name)
	assert.Equal(t, 1, rec.Hardware[0].Qty)
	assert.Equal(t, "RAL 7035", rec.FinishColor.PushSide)
}

func TestExtractRecordMalformedContent(t *testing.T) {
	raw := "Sure! Here is the JSON you asked for: {..."
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(raw))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExtractRecord(context.Background(), "| md |")
	require.Error(t, err)

	var pe *errs.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "completions", pe.Service)
	// the raw model content survives for diagnosis
	assert.Equal(t, raw, pe.Payload)
}

func TestExtractRecordMissingChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExtractRecord(context.Background(), "| md |")
	require.Error(t, err)
	assert.True(t, errs.IsProtocol(err))
}

func TestExtractRecordNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExtractRecord(context.Background(), "| md |")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
