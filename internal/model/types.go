package model

// API request and response shapes.

// LocationIn is one row of an uploaded instance. The first location is the
// depot and must carry zero demand.
type LocationIn struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Demand int     `json:"demand"`
}

type InstanceIn struct {
	Name      string       `json:"name,omitempty"`
	Capacity  int          `json:"capacity"`
	Locations []LocationIn `json:"locations"`
	Alpha     *float64     `json:"alpha,omitempty"`
	Beta      *float64     `json:"beta,omitempty"`
}

type InstanceOut struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	NumShops  int      `json:"numShops"`
	Capacity  int      `json:"capacity"`
	Alpha     *float64 `json:"alpha,omitempty"`
	Beta      *float64 `json:"beta,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

// GenerateRequest asks the service to synthesize a random instance.
type GenerateRequest struct {
	Name     string   `json:"name,omitempty"`
	NumShops int      `json:"numShops"`
	Capacity int      `json:"capacity"`
	Seed     int64    `json:"seed,omitempty"`
	Alpha    *float64 `json:"alpha,omitempty"`
	Beta     *float64 `json:"beta,omitempty"`
}

type SolveRequest struct {
	InstanceID  string `json:"instanceId"`
	Variant     string `json:"variant,omitempty"` // defaults to ils
	Seed        int64  `json:"seed,omitempty"`
	Iterations  int    `json:"iterations,omitempty"`
	TimeLimitMs int    `json:"timeLimitMs,omitempty"`
	Verbose     bool   `json:"verbose,omitempty"`
	// Per-solve emissions coefficient overrides.
	Alpha *float64 `json:"alpha,omitempty"`
	Beta  *float64 `json:"beta,omitempty"`
}

// RouteOut is one solved route.
type RouteOut struct {
	RouteID   int     `json:"routeId"`
	Sequence  []int   `json:"sequence"`
	Distance  float64 `json:"distance"`
	Load      int     `json:"load"`
	Capacity  int     `json:"capacity"`
	NumShops  int     `json:"numShops"`
	Emissions float64 `json:"emissionsKg"`
}

type SolveStatsOut struct {
	Iterations    int     `json:"iterations"`
	Improvements  int     `json:"improvements"`
	AcceptedWorse int     `json:"acceptedWorse"`
	Restarts      int     `json:"restarts"`
	InitialCost   float64 `json:"initialCost"`
	RuntimeMs     int64   `json:"runtimeMs"`
}

type SolveOut struct {
	ID         string         `json:"id"`
	InstanceID string         `json:"instanceId"`
	Variant    string         `json:"variant"`
	Status     string         `json:"status"`
	Cost       float64        `json:"cost,omitempty"`
	Emissions  float64        `json:"emissionsKg,omitempty"`
	Routes     []RouteOut     `json:"routes,omitempty"`
	Stats      *SolveStatsOut `json:"stats,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  string         `json:"createdAt"`
	FinishedAt string         `json:"finishedAt,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// SolverConfig is the tunable default parameter set, readable by anyone and
// writable through the admin endpoint.
type SolverConfig struct {
	Variant     string  `json:"variant"`
	Iterations  int     `json:"iterations"`
	TimeLimitMs int     `json:"timeLimitMs"`
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
}
