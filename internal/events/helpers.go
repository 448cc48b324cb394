package events

import (
	"encoding/json"
	"fmt"
)

// SetAttemptData sets the Data field with AttemptData in a type-safe way.
func (e *Event) SetAttemptData(data AttemptData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AttemptData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetAttemptData retrieves AttemptData from the Data field.
func (e *Event) GetAttemptData() (*AttemptData, error) {
	var data AttemptData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AttemptData: %w", err)
	}
	return &data, nil
}

// SetCycleData sets the Data field with CycleData in a type-safe way.
func (e *Event) SetCycleData(data CycleData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CycleData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCycleData retrieves CycleData from the Data field.
func (e *Event) GetCycleData() (*CycleData, error) {
	var data CycleData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CycleData: %w", err)
	}
	return &data, nil
}

// SetPullRequestData sets the Data field with PullRequestData.
func (e *Event) SetPullRequestData(data PullRequestData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert PullRequestData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetPullRequestData retrieves PullRequestData from the Data field.
func (e *Event) GetPullRequestData() (*PullRequestData, error) {
	var data PullRequestData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PullRequestData: %w", err)
	}
	return &data, nil
}

// SetEventCleanupData sets the Data field with EventCleanupCompletedData.
func (e *Event) SetEventCleanupData(data EventCleanupCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert EventCleanupCompletedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetEventCleanupData retrieves EventCleanupCompletedData from the Data field.
func (e *Event) GetEventCleanupData() (*EventCleanupCompletedData, error) {
	var data EventCleanupCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse EventCleanupCompletedData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
