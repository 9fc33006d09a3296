package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonbScan decodes a JSONB column into dest, tolerating NULL.
func jsonbScan(src interface{}, dest interface{}) error {
	if src == nil {
		return nil
	}
	switch raw := src.(type) {
	case []byte:
		return json.Unmarshal(raw, dest)
	case string:
		return json.Unmarshal([]byte(raw), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// JSONMap is a JSONB object column. A nil map round-trips as SQL NULL,
// which the snapshot store relies on to encode "resource did not exist".
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	return jsonbScan(src, m)
}

// Clone deep-copies the map through a JSON round-trip so nested maps and
// slices do not alias the receiver. A nil map stays nil.
func (m JSONMap) Clone() (JSONMap, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("clone json map: %w", err)
	}
	var out JSONMap
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone json map: %w", err)
	}
	return out, nil
}

// ChangeList is a JSONB array of field changes.
type ChangeList []Change

// Value implements driver.Valuer.
func (l ChangeList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ChangeList) Scan(src interface{}) error {
	return jsonbScan(src, l)
}

// ApprovalList is a JSONB array of approvals.
type ApprovalList []Approval

// Value implements driver.Valuer.
func (l ApprovalList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ApprovalList) Scan(src interface{}) error {
	return jsonbScan(src, l)
}

// RejectionList is a JSONB array of rejections.
type RejectionList []Rejection

// Value implements driver.Valuer.
func (l RejectionList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *RejectionList) Scan(src interface{}) error {
	return jsonbScan(src, l)
}

// ConflictList is a JSONB array of detected conflicts.
type ConflictList []Conflict

// Value implements driver.Valuer.
func (l ConflictList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ConflictList) Scan(src interface{}) error {
	return jsonbScan(src, l)
}

// ResolutionRecordList is a JSONB array of conflict resolution records.
type ResolutionRecordList []ConflictResolutionRecord

// Value implements driver.Valuer.
func (l ResolutionRecordList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ResolutionRecordList) Scan(src interface{}) error {
	return jsonbScan(src, l)
}

// NullExecutionResult wraps an optional execution result stored as a
// nullable JSONB column. It marshals as the bare result (or null).
type NullExecutionResult struct {
	Result *ExecutionResult
}

// Value implements driver.Valuer.
func (n NullExecutionResult) Value() (driver.Value, error) {
	if n.Result == nil {
		return nil, nil
	}
	return json.Marshal(n.Result)
}

// Scan implements sql.Scanner.
func (n *NullExecutionResult) Scan(src interface{}) error {
	if src == nil {
		n.Result = nil
		return nil
	}
	var result ExecutionResult
	if err := jsonbScan(src, &result); err != nil {
		return err
	}
	n.Result = &result
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n NullExecutionResult) MarshalJSON() ([]byte, error) {
	if n.Result == nil {
		return []byte("null"), nil
	}
	return json.Marshal(n.Result)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullExecutionResult) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Result = nil
		return nil
	}
	var result ExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	n.Result = &result
	return nil
}
