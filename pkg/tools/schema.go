package tools

import "github.com/harborview/voicedesk/pkg/reasoning"

// Schema returns the tool definitions advertised to the reasoning
// engine. Argument shapes are part of the public contract with the
// model; changing them silently breaks tool calling.
func Schema() []reasoning.Tool {
	return []reasoning.Tool{
		reasoning.NewTool(
			ToolCheckAccountStatus,
			"Checks if the provided 5-digit account is active and valid. MUST be called before any other tool.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_id": map[string]interface{}{
						"type":        "string",
						"description": "The 5-digit account number.",
					},
				},
				"required": []string{"account_id"},
			},
		),
		reasoning.NewTool(
			ToolGetGuestReservation,
			"Retrieves booking details for a verified account.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_id": map[string]interface{}{
						"type":        "string",
						"description": "The verified 5-digit account number.",
					},
					"search_name": map[string]interface{}{
						"type":        "string",
						"description": "The name of the guest to search for.",
					},
				},
				"required": []string{"account_id", "search_name"},
			},
		),
		reasoning.NewTool(
			ToolCancelGuestReservation,
			"Marks a booking as canceled.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_id": map[string]interface{}{
						"type":        "string",
						"description": "The verified 5-digit account number.",
					},
					"reservation_id": map[string]interface{}{
						"type":        "integer",
						"description": "The ID of the reservation to cancel.",
					},
				},
				"required": []string{"account_id", "reservation_id"},
			},
		),
		reasoning.NewTool(
			ToolMakeNewReservation,
			"Creates a new reservation.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_id": map[string]interface{}{
						"type":        "string",
						"description": "The verified 5-digit account number.",
					},
					"guest_name": map[string]interface{}{
						"type":        "string",
						"description": "Name of the guest.",
					},
					"check_in_date": map[string]interface{}{
						"type":        "string",
						"description": "Check-in date (YYYY-MM-DD).",
					},
					"room_type": map[string]interface{}{
						"type":        "string",
						"description": "Type of room (e.g., King, Queen, Suite).",
					},
				},
				"required": []string{"account_id", "guest_name", "check_in_date", "room_type"},
			},
		),
		reasoning.NewTool(
			ToolEditGuestReservation,
			"Edits an existing reservation's check-in date and/or room type. Only provide the fields you want to change.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_id": map[string]interface{}{
						"type":        "string",
						"description": "The verified 5-digit account number.",
					},
					"reservation_id": map[string]interface{}{
						"type":        "integer",
						"description": "The ID of the reservation to edit.",
					},
					"new_check_in_date": map[string]interface{}{
						"type":        "string",
						"description": "New check-in date (YYYY-MM-DD). Optional.",
					},
					"new_room_type": map[string]interface{}{
						"type":        "string",
						"description": "New room type (e.g., King, Queen, Suite). Optional.",
					},
				},
				"required": []string{"account_id", "reservation_id"},
			},
		),
	}
}

// Restricted reports whether a tool requires a verified session.
// Only the account status check is allowed before verification.
func Restricted(name string) bool {
	return name != ToolCheckAccountStatus
}

// Known reports whether the name is in the closed tool set.
func Known(name string) bool {
	switch name {
	case ToolCheckAccountStatus, ToolGetGuestReservation, ToolMakeNewReservation,
		ToolCancelGuestReservation, ToolEditGuestReservation:
		return true
	}
	return false
}
