package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `skitimer records bib crossings at a ski race timing point and syncs them with other stations.

Core concepts:
- Entry: one crossing (bib, run, point S=start or F=finish, timestamp). Timestamps are assigned by the station.
- Race: a shared race id several devices time together. Joining a race adopts entries recorded before joining.
- Sync: pending entries are pushed to the gateway and the race is pulled back. Offline is normal; entries stay pending.

Workflow:
1) Call recent_races (today=true) to find the race in progress, then join_race.
2) Call record_entry for each crossing. Omit run/point to use the station defaults; the result suggests the next bib.
3) Fix mistakes with edit_bib or remove_entry. Removal leaves a tombstone so other devices learn about it. Only entries recorded on this device can be changed.
4) Call sync_now when connectivity returns. OFFLINE and RATE_LIMITED errors are safe to retry later.

Docs:
- skitimer://docs/timing (timing points, runs and bib rules)
- skitimer://docs/sync (how devices converge)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "skitimer://docs/timing",
		Name:        "docs_timing",
		Title:       "Timing points and bibs",
		Description: "What an entry is and how bibs, runs and timing points are validated.",
		Content: `# Timing

Each entry records one bib crossing one timing point.

- ` + "`point`" + `: ` + "`S`" + ` (start) or ` + "`F`" + ` (finish). ` + "`start`" + ` and ` + "`finish`" + ` are accepted too.
- ` + "`run`" + `: 1 or higher. Defaults to the station's default run.
- ` + "`bib`" + `: up to 6 digits. Empty is allowed and can be filled in later with ` + "`edit_bib`" + `.

Timestamps are set by the station clock and never go backwards on one device, so the list is always in recording order.

With auto-increment on, ` + "`record_entry`" + ` returns ` + "`nextBib`" + `: the bib plus one, keeping leading zeros (` + "`009`" + ` becomes ` + "`010`" + `).

` + "`entry_stats`" + ` counts starts, finishes, entries without a race and entries waiting for sync, plus a per-bib breakdown.
`,
	},
	{
		URI:         "skitimer://docs/sync",
		Name:        "docs_sync",
		Title:       "Sync between stations",
		Description: "How pending entries reach the gateway and how conflicts resolve.",
		Content: `# Sync

` + "`sync_now`" + ` pushes every pending entry of the joined race, deletes removed entries on the gateway and pulls the race back.

- Each entry belongs to the device that recorded it.
- The newest ` + "`updatedAt`" + ` wins. A removal is never undone by an older edit.
- An entry still pending on this station is never overwritten by the gateway copy.
- The pull uses an ETag, so an unchanged race costs a 304 and no merge.

Errors:
- ` + "`OFFLINE`" + `: nothing was lost; entries stay pending.
- ` + "`RATE_LIMITED`" + `: wait ` + "`retryAfter`" + ` seconds.
- ` + "`AUTH_EXPIRED`" + `: the station token must be reissued (` + "`timingd token issue`" + `).
- ` + "`SYNC_DISABLED`" + ` / ` + "`NO_RACE`" + `: enable cloud sync or join a race first.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
