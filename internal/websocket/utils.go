// internal/websocket/utils.go
package websocket

import "encoding/json"

// DecodeData converts a message's loosely typed payload into target.
func DecodeData(data interface{}, target interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}
