package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"formascrape/helpers"
	apperr "formascrape/pkg/errors"
)

// flexCount decodes a numeric column that arrives as a number, a quoted
// number, or null depending on the dataset revision.
type flexCount struct {
	value *int64
}

func (f *flexCount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		n = json.Number(s)
	}
	if v, err := n.Int64(); err == nil {
		f.value = &v
	} else if fv, err := n.Float64(); err == nil {
		v := int64(fv)
		f.value = &v
	}
	return nil
}

func (f flexCount) MarshalJSON() ([]byte, error) {
	if f.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.value)
}

// Ptr returns the decoded count, nil when the column was absent or empty.
func (f flexCount) Ptr() *int64 { return f.value }

// Record is one row of the public training-organization registry.
type Record struct {
	Denomination    string    `json:"denomination"`
	Siren           string    `json:"siren"`
	Siret           string    `json:"siretetablissementdeclarant"`
	Trainees        flexCount `json:"nbstagiaires"`
	TraineesHosted  flexCount `json:"nbstagiairesconfies"`
	Trainers        flexCount `json:"effectifformateurs"`
	FiscalYearStart string    `json:"debutexercice"`
	DeclarationDate string    `json:"datedeclaration"`
}

type searchResponse struct {
	Data []Record `json:"data"`
}

// Client queries the tabular open-data API for organization records.
type Client struct {
	http *resty.Client
	rows int
}

// NewClient builds a registry client with bounded retry and jittered
// backoff on transient failures.
func NewClient(baseURL string, rows, retries int, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", helpers.RandomUserAgent()).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Client{http: c, rows: rows}
}

// Search looks up registry rows whose denomination contains the given name.
func (c *Client) Search(ctx context.Context, name string) ([]Record, error) {
	var out searchResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"denomination__contains": name,
			"page_size":              fmt.Sprintf("%d", c.rows),
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return nil, apperr.NewRegistry("lookup", "query registry", err)
	}
	if resp.IsError() {
		return nil, apperr.NewRegistry("lookup",
			fmt.Sprintf("registry returned status %d", resp.StatusCode()), nil)
	}

	if len(out.Data) > c.rows {
		out.Data = out.Data[:c.rows]
	}
	return out.Data, nil
}
