package models

// SegmentID identifies an account segment (account type).
type SegmentID int64

// Seeded by the store migrations.
const (
	SegmentManaged            SegmentID = 1
	SegmentIntensive          SegmentID = 2
	SegmentManagedColocation  SegmentID = 3
	SegmentRackspaceCloud     SegmentID = 4
	SegmentEnterpriseServices SegmentID = 5
	SegmentEnterpriseCloud    SegmentID = 6
	SegmentEnterpriseSecurity SegmentID = 7
	SegmentStartup            SegmentID = 8
)

// QueueID identifies a ticket queue.
type QueueID int64

const (
	QueueManaged            QueueID = 101
	QueueIntensive          QueueID = 102
	QueueManagedColocation  QueueID = 103
	QueueCloudDeployment    QueueID = 104
	QueueEnterpriseServices QueueID = 105
)

// TeamRoleSupport tags teams created from team events.
const TeamRoleSupport int64 = 1

func inEnterpriseServicesGroup(segment SegmentID) bool {
	switch segment {
	case SegmentEnterpriseServices, SegmentEnterpriseCloud, SegmentEnterpriseSecurity:
		return true
	default:
		return false
	}
}

// SupportQueue maps a segment to its support queue. The boolean is false
// for segments that have no queue.
func SupportQueue(segment SegmentID) (QueueID, bool) {
	switch {
	case segment == SegmentManaged:
		return QueueManaged, true
	case segment == SegmentIntensive:
		return QueueIntensive, true
	case segment == SegmentManagedColocation:
		return QueueManagedColocation, true
	case segment == SegmentRackspaceCloud:
		return QueueCloudDeployment, true
	case inEnterpriseServicesGroup(segment):
		return QueueEnterpriseServices, true
	default:
		return 0, false
	}
}
