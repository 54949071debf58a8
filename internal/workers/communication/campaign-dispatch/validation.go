// internal/workers/communication/campaign-dispatch/validation.go
package campaigndispatch

import "batch-mailer/internal/common/validation"

// GetInputSchema describes the job variables. Other process variables are
// allowed alongside them.
func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:                 "object",
		Required:             []string{"rows", "emailColumn"},
		AdditionalProperties: true,
		Properties: map[string]validation.Property{
			"runId": {
				Type:        "string",
				Description: "Run identifier, also names the cancel and progress keys",
				Pattern:     `^[A-Za-z0-9._:-]*$`,
				MaxLength:   validation.IntPtr(128),
			},
			"campaignId": {
				Type:        "string",
				Description: "Campaign the run belongs to",
				MaxLength:   validation.IntPtr(128),
			},
			"rows": {
				Type:        "array",
				Description: "Recipient rows keyed by column name",
				Items:       &validation.Property{Type: "object"},
			},
			"emailColumn": {
				Type:        "string",
				Description: "Column holding the recipient address",
				MinLength:   validation.IntPtr(1),
			},
			"companyColumn": {
				Type:        "string",
				Description: "Column substituted for [Company Name]",
			},
			"columnBindings": {
				Type:                 "object",
				Description:          "Column name to placeholder",
				AdditionalProperties: &validation.Property{Type: "string"},
			},
			"userDetails": {
				Type:                 "object",
				Description:          "Placeholder to sender detail",
				AdditionalProperties: &validation.Property{Type: "string"},
			},
			"template": {
				Type:        "string",
				Description: "Message template starting with a Subject: line",
				MaxLength:   validation.IntPtr(100000),
			},
			"resumeLink": {
				Type:        "string",
				Description: "Optional http(s) link inserted into the template",
				MaxLength:   validation.IntPtr(2048),
			},
			"batchSize": {
				Type:        "integer",
				Description: "Messages per batch",
				Minimum:     validation.FloatPtr(1),
			},
			"delayPerEmailMs": {
				Type:        "integer",
				Description: "Pause between messages in a batch",
				Minimum:     validation.FloatPtr(0),
			},
			"delayPerBatchMs": {
				Type:        "integer",
				Description: "Pause between batches",
				Minimum:     validation.FloatPtr(0),
			},
			"preview": {
				Type:        "boolean",
				Description: "Render and log messages without sending",
			},
		},
	}
}
