// internal/syncqueue/elastic.go
package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/models"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticRemote mirrors records into an Elasticsearch index keyed by record id,
// so a repeated delivery overwrites instead of duplicating.
type ElasticRemote struct {
	transport esapi.Transport
	index     string
}

func NewElasticRemote(transport esapi.Transport, index string) *ElasticRemote {
	return &ElasticRemote{transport: transport, index: index}
}

func (r *ElasticRemote) Name() string { return "elasticsearch" }

func (r *ElasticRemote) Submit(ctx context.Context, item models.PendingSyncItem) error {
	row, err := buildMirrorRow(item)
	if err != nil {
		return apperrors.NewRemoteRejectedError(0, err.Error())
	}
	body, err := json.Marshal(row)
	if err != nil {
		return apperrors.NewRemoteRejectedError(0, err.Error())
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: row.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, r.transport)
	if err != nil {
		return apperrors.NewRemoteUnavailableError(err)
	}
	defer res.Body.Close()

	if !res.IsError() {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	if res.StatusCode >= http.StatusInternalServerError {
		return apperrors.NewRemoteUnavailableError(fmt.Errorf("status %d: %s", res.StatusCode, msg))
	}
	return apperrors.NewRemoteRejectedError(res.StatusCode, string(msg))
}
