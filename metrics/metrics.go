package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GroupsLoaded tracks the number of fully loaded channel groups
	GroupsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvr_groups_loaded",
		Help: "Number of fully loaded channel groups",
	})

	// GroupMembers tracks the number of members per group
	GroupMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pvr_group_members",
		Help: "Number of members per channel group",
	}, []string{"group"})

	// ChannelsRemoved tracks channels removed during reconciliation per group
	ChannelsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvr_channels_removed_total",
		Help: "Total number of channels removed during reconciliation",
	}, []string{"group"})

	// BackendFetchFailures tracks failed backend fetches per backend id
	BackendFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvr_backend_fetch_failures_total",
		Help: "Total number of failed backend membership fetches",
	}, []string{"backend"})

	// GroupSyncs tracks reconciliation runs by result
	GroupSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvr_group_syncs_total",
		Help: "Total number of group reconciliation runs",
	}, []string{"result"})

	// GroupPersistFailures tracks failed group persists
	GroupPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvr_group_persist_failures_total",
		Help: "Total number of failed group persists",
	})
)

// Sync results
const (
	SyncResultOK     = "ok"
	SyncResultFailed = "failed"
)

// SetGroupsLoaded sets the number of loaded groups
func SetGroupsLoaded(count int) {
	GroupsLoaded.Set(float64(count))
}

// SetGroupMembers sets the member count for a group
func SetGroupMembers(group string, count int) {
	GroupMembers.WithLabelValues(group).Set(float64(count))
}

// DeleteGroupMembers drops the member gauge of a removed group
func DeleteGroupMembers(group string) {
	GroupMembers.DeleteLabelValues(group)
}

// RecordChannelsRemoved adds to the removed channel counter for a group
func RecordChannelsRemoved(group string, count int) {
	if count > 0 {
		ChannelsRemoved.WithLabelValues(group).Add(float64(count))
	}
}

// RecordBackendFetchFailure increments the fetch failure counter for a backend
func RecordBackendFetchFailure(backend string) {
	BackendFetchFailures.WithLabelValues(backend).Inc()
}

// RecordGroupSync increments the reconciliation counter for a result
func RecordGroupSync(result string) {
	GroupSyncs.WithLabelValues(result).Inc()
}

// RecordGroupPersistFailure increments the persist failure counter
func RecordGroupPersistFailure() {
	GroupPersistFailures.Inc()
}
