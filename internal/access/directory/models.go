package directory

// EntitlementRef identifies an entitlement resolved from its alias.
type EntitlementRef struct {
	AppID         string `json:"appId"`
	EntitlementID string `json:"appEntitlementId"`
	Alias         string `json:"alias"`
	DisplayName   string `json:"displayName,omitempty"`
}

// SubjectRef identifies the user a task is about, and the request field
// that carries the identifier in the active subject mode.
type SubjectRef struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	Username string `json:"username"`
}

type entitlementSearchRequest struct {
	Alias    string `json:"alias"`
	PageSize int    `json:"pageSize"`
}

type entitlementSearchResponse struct {
	List []struct {
		AppEntitlement struct {
			ID          string `json:"id"`
			AppID       string `json:"appId"`
			DisplayName string `json:"displayName"`
		} `json:"appEntitlement"`
	} `json:"list"`
}

type appUserSearchRequest struct {
	AppID    string `json:"appId"`
	Query    string `json:"query"`
	PageSize int    `json:"pageSize"`
}

type appUserSearchResponse struct {
	List []struct {
		AppUser struct {
			ID string `json:"id"`
		} `json:"appUser"`
	} `json:"list"`
}

type userSearchRequest struct {
	Query    string `json:"query"`
	PageSize int    `json:"pageSize"`
}

type userSearchResponse struct {
	List []struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"list"`
}
