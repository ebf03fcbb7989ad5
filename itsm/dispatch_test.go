package itsm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedParams makes every item resolve the same parameter set.
func fixedParams(p OperationParams) func(int) (OperationParams, error) {
	return func(int) (OperationParams, error) { return p, nil }
}

func newTestContext(serverURL string, items []Item, p OperationParams) *ExecutionContext {
	client := NewClient(Credentials{TenantURL: serverURL, APIKey: "secret"}, nil)
	return NewExecutionContext(client, items, fixedParams(p))
}

func TestExecute_BusinessObjectGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rest_api_key=secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/odata/businessobject/incidents('REC1')", r.URL.Path)
		w.Write([]byte(`{"@odata.context":"ctx","Zeta":1,"RecId":"REC1","Alpha":null}`))
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "REC1",
	})
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGet)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Items, 1)
	assert.Equal(t, `{"RecId":"REC1","Alpha":null,"Zeta":1}`, results[0].Items[0].JSON)
}

func TestExecute_GetAllPaginatesUntilShortPage(t *testing.T) {
	total := 250
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
		fmt.Fprint(w, `{"value":[`)
		first := true
		for i := skip; i < skip+top && i < total; i++ {
			if !first {
				fmt.Fprint(w, ",")
			}
			first = false
			fmt.Fprintf(w, `{"RecId":"R%d"}`, i)
		}
		fmt.Fprint(w, `]}`)
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		ReturnAll:  true,
		Pagination: PaginationOptions{PagesPerBatch: -1},
	})
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGetAll)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Items, total)
	assert.Equal(t, "R249", results[0].Items[total-1].Get("RecId").String())
}

func TestExecute_GetAllBoundedLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		fmt.Fprint(w, `{"value":[`)
		for i := 0; i < top; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"RecId":"R%d"}`, skip+i)
		}
		fmt.Fprint(w, `]}`)
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		Limit:      150,
		Pagination: PaginationOptions{PagesPerBatch: -1},
	})
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGetAll)
	require.NoError(t, err)
	assert.Len(t, results[0].Items, 150)
}

func TestExecute_CreateSendsCoercedPayload(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.Write([]byte(`{"RecId":"NEW1","Subject":"hello"}`))
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		Assignments: []Assignment{
			{Name: "Subject", Value: "hello", Type: TypeString},
			{Name: "Priority", Value: "3", Type: TypeNumber},
		},
	})
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationCreate)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Subject":"hello","Priority":3}`, received)
	assert.Equal(t, "NEW1", results[0].Items[0].Get("RecId").String())
}

func TestExecute_UpdateUsesRawBody(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/odata/businessobject/incidents('REC1')", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.Write([]byte(`{"RecId":"REC1","Status":"Closed"}`))
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "REC1",
		RawBody:    `{"Status":"Closed"}`,
	})
	_, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationUpdate)
	require.NoError(t, err)
	assert.Equal(t, `{"Status":"Closed"}`, received)
}

func TestExecute_UpdateRejectsMalformedRawBody(t *testing.T) {
	ec := newTestContext("http://unreachable.invalid", []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "REC1",
		RawBody:    `{"Status":`,
	})
	_, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationUpdate)
	assert.Error(t, err)
}

func TestExecute_DeleteReturnsMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "REC1",
	})
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationDelete)
	require.NoError(t, err)
	item := results[0].Items[0]
	assert.True(t, item.Get("success").Bool())
	assert.Equal(t, "Successfully deleted the record", item.Get("message").String())
	assert.Equal(t, "REC1", item.Get("recId").String())
}

func TestExecute_GetWithSelectUsesFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/odata/businessobject/incidents", r.URL.Path)
		assert.Equal(t, "RecId eq 'REC1'", r.URL.Query().Get("$filter"))
		assert.Equal(t, "RecId,Subject", r.URL.Query().Get("$select"))
		w.Write([]byte(`{"value":[{"RecId":"REC1","Subject":"s"}]}`))
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "REC1",
		Select:     []string{"RecId", "Subject"},
	})
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGet)
	require.NoError(t, err)
	assert.Equal(t, `{"RecId":"REC1","Subject":"s"}`, results[0].Items[0].JSON)
}

func TestExecute_GetWithSelectMissingRecordIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[]}`))
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "GONE",
		Select:     []string{"RecId"},
	})
	_, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GONE")
}

func TestExecute_UnknownOperationPassesInputThrough(t *testing.T) {
	items := []Item{
		{JSON: `{"keep":"me"}`},
		{JSON: `{"and":"me"}`},
	}
	ec := newTestContext("http://unreachable.invalid", items, OperationParams{})
	results, err := Execute(context.Background(), ec, Resource("mystery"), Operation("noSuchThing"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, `{"keep":"me"}`, results[0].Items[0].JSON)
	assert.Equal(t, `{"and":"me"}`, results[1].Items[0].JSON)
	assert.Equal(t, 1, results[1].Items[0].Input)
}

func TestExecute_ContinueOnFailKeepsGoing(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":{"lang":"en-US","value":"Record not found"}}}`))
			return
		}
		w.Write([]byte(`{"RecId":"REC2"}`))
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}, {JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "REC1",
	})
	ec.ContinueOnFail = true
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGet)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)

	out := Flatten(results)
	require.Len(t, out, 2)
	assert.Equal(t, "Record not found", out[0].Get("error").String())
	assert.Equal(t, "REC2", out[1].Get("RecId").String())
}

func TestExecute_AbortWrapsClassifiedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"Message":"Invalid API key"}`))
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName: "incident",
		RecID:      "REC1",
	})
	_, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestExecute_EmptyInput(t *testing.T) {
	ec := newTestContext("http://unreachable.invalid", nil, OperationParams{})
	results, err := Execute(context.Background(), ec, ResourceBusinessObject, OperationGet)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecute_RelationshipLinkAndUnlink(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		assert.Equal(t, "/api/odata/businessobject/incidents('REC1')/IncidentAssociatesProblem('REC2')/$Ref", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	params := OperationParams{
		ObjectName:       "incident",
		RecID:            "REC1",
		RelationshipName: "IncidentAssociatesProblem",
		RelatedRecID:     "REC2",
	}

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, params)
	results, err := Execute(context.Background(), ec, ResourceRelationship, OperationLink)
	require.NoError(t, err)
	item := results[0].Items[0]
	assert.Equal(t, "Successfully created the link", item.Get("message").String())
	assert.Equal(t, "REC1", item.Get("recId").String())
	assert.Equal(t, "REC2", item.Get("relatedRecId").String())

	ec = newTestContext(server.URL, []Item{{JSON: "{}"}}, params)
	results, err = Execute(context.Background(), ec, ResourceRelationship, OperationUnlink)
	require.NoError(t, err)
	assert.Equal(t, "Successfully removed the link", results[0].Items[0].Get("message").String())

	assert.Equal(t, []string{http.MethodPatch, http.MethodDelete}, methods)
}

func TestExecute_RelationshipGetRelatedPaginates(t *testing.T) {
	total := 120
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/odata/businessobject/incidents('REC1')/IncidentAssociatesProblem", r.URL.Path)
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
		fmt.Fprint(w, `{"value":[`)
		first := true
		for i := skip; i < skip+top && i < total; i++ {
			if !first {
				fmt.Fprint(w, ",")
			}
			first = false
			fmt.Fprintf(w, `{"RecId":"P%d"}`, i)
		}
		fmt.Fprint(w, `]}`)
	}))
	defer server.Close()

	ec := newTestContext(server.URL, []Item{{JSON: "{}"}}, OperationParams{
		ObjectName:       "incident",
		RecID:            "REC1",
		RelationshipName: "IncidentAssociatesProblem",
		ReturnAll:        true,
		Pagination:       PaginationOptions{PagesPerBatch: -1},
	})
	results, err := Execute(context.Background(), ec, ResourceRelationship, OperationGetRelated)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Items, total)
	assert.Equal(t, "P119", results[0].Items[total-1].Get("RecId").String())
	assert.Equal(t, 0, results[0].Items[0].Input)
}
