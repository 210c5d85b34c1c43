package logging

// Component constants for structured logging
const (
	ComponentStartup    = "startup"
	ComponentDatabase   = "database"
	ComponentAPI        = "api"
	ComponentAuth       = "auth"
	ComponentRenderer   = "renderer"
	ComponentBrowser    = "browser"
	ComponentExport     = "export"
	ComponentBatch      = "batch"
	ComponentAssets     = "assets"
	ComponentTemplates  = "templates"
	ComponentSignatures = "signatures"
	ComponentPromotions = "promotions"
	ComponentCLI        = "cli"
	ComponentPoller     = "poller"
)
