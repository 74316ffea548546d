package common

// AuthorizationHeader carries the bearer access token on inbound requests.
const AuthorizationHeader = "Authorization"

// BearerScheme is the auth scheme expected in AuthorizationHeader.
const BearerScheme = "Bearer"

// BillingSecretHeader carries the shared secret of the billing webhook
// collaborator.
const BillingSecretHeader = "X-Billing-Secret"
