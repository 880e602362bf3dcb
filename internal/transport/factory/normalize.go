package factory

import (
	"bytes"
	"encoding/json"
	"time"

	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// Window date placeholders.
const (
	dateMissing = "N/A"
	dateInvalid = "Invalid Date"
)

// usageEnvelope is the upstream response shape. Dates stay raw because
// the endpoint serves epoch milliseconds, null or garbage and each maps
// to a different display value.
type usageEnvelope struct {
	Usage *usageWindow `json:"usage"`
}

type usageWindow struct {
	StartDate json.RawMessage `json:"startDate"`
	EndDate   json.RawMessage `json:"endDate"`
	Standard  *standardUsage  `json:"standard"`
}

type standardUsage struct {
	OrgTotalTokensUsed float64 `json:"orgTotalTokensUsed"`
	TotalAllowance     float64 `json:"totalAllowance"`
	UsedRatio          float64 `json:"usedRatio"`
}

// parseUsage converts a 2xx JSON body into a report result. A body
// without a usable usage.standard block yields an invalid-response
// failure and ok=false.
func parseUsage(cred domcred.Credential, body []byte) (domreport.Result, bool) {
	var env usageEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Usage == nil || env.Usage.Standard == nil {
		return domreport.NewFailure(cred.ID(), cred.Masked(), msgInvalidResponse), false
	}

	std := env.Usage.Standard
	return domreport.NewSuccess(
		cred.ID(),
		cred.Masked(),
		normalizeDate(env.Usage.StartDate),
		normalizeDate(env.Usage.EndDate),
		std.OrgTotalTokensUsed,
		std.TotalAllowance,
		std.UsedRatio,
	), true
}

// normalizeDate renders an epoch-milliseconds date as a UTC calendar
// day. Null or absent values render as "N/A", anything that is not a
// JSON number as "Invalid Date".
func normalizeDate(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return dateMissing
	}

	var ms float64
	if err := json.Unmarshal(trimmed, &ms); err != nil {
		return dateInvalid
	}
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02")
}
