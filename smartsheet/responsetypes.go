package smartsheet

// UsersPage is one page of the organization member listing.
type UsersPage struct {
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
	TotalCount int    `json:"totalCount"`
	Data       []User `json:"data"`
}

// errorResponse is the body the service sends alongside non-2xx statuses.
type errorResponse struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
	RefID     string `json:"refId"`
}
