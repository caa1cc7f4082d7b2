package ctxutil

import (
	"context"
	"testing"
)

func TestRequestDataRoundTrip(t *testing.T) {
	if GetRequestData(context.Background()) != nil {
		t.Fatalf("expected nil request data on a bare context")
	}
	ctx := WithRequestData(nil, &RequestData{RequestID: "r-1", TraceID: "t-1"})
	rd := GetRequestData(ctx)
	if rd == nil || rd.RequestID != "r-1" || rd.TraceID != "t-1" {
		t.Fatalf("unexpected request data %+v", rd)
	}
}
