package nexusmods

import (
	"context"
	"iter"

	"github.com/Sternrassler/nexusmods-stats/pkg/statistics"
)

// DefaultStatsBaseURL serves the live download counts feeds.
const DefaultStatsBaseURL = "https://staticstats.nexusmods.com/"

// StatisticsClient reads the live download counts of a game.
type StatisticsClient struct {
	reader *statistics.Reader
}

// NewStatisticsClient wraps reader.
func NewStatisticsClient(reader *statistics.Reader) *StatisticsClient {
	return &StatisticsClient{reader: reader}
}

// LiveDownloadCounts streams the counts of every mod of gameID.
func (c *StatisticsClient) LiveDownloadCounts(ctx context.Context, gameID string) iter.Seq2[statistics.LiveStatisticsEntry, error] {
	return c.reader.Records(ctx, gameID)
}

// FindMod returns the counts of one mod, stopping the pull once it is found.
func (c *StatisticsClient) FindMod(ctx context.Context, gameID, modID string) (statistics.LiveStatisticsEntry, bool, error) {
	return c.reader.Find(ctx, gameID, modID)
}
