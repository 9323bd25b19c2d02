package dto

// DeviceTokens lists the caller's registered push tokens.
type DeviceTokens struct {
	Tokens []string `json:"tokens"`
}

func MapDeviceTokens(tokens []string) DeviceTokens {
	if tokens == nil {
		tokens = []string{}
	}
	return DeviceTokens{Tokens: tokens}
}
