package model

// Setting keys for the Zenchef integration.
const (
    SettingZenchefToken        = "zenchef_api_token"
    SettingZenchefRestaurantID = "zenchef_restaurant_id"
)

// Setting is a key/value pair of the settings table.
type Setting struct {
    Key   string `db:"setting_key"`
    Value string `db:"setting_value"`
}

// ZenchefCredentials holds what the sync needs to query the Zenchef API.
type ZenchefCredentials struct {
    APIToken     string `json:"api_token"`
    RestaurantID string `json:"restaurant_id"`
}

// Complete reports whether both credentials are present.
func (c ZenchefCredentials) Complete() bool {
    return c.APIToken != "" && c.RestaurantID != ""
}
