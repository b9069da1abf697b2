package badger

import (
	"encoding/binary"

	"github.com/poiesic/minutes/core"
)

// Key prefixes for different data types
const (
	meetingPrefix          = "mtg:"
	transcriptPrefix       = "trn:"
	qaRecordPrefix         = "qa:"
	qaMeetingPrefix        = "qam:"
	summaryPrefix          = "sum:"
	vectorCollPrefix       = "vcol:"
	vectorPointPrefix      = "vpt:"
	vectorIndexPrefix      = "vidx:"
	keySeparator      byte = 0x00
)

// scopedPrefix builds prefix + scope + separator. The separator keeps
// meeting "a" from matching keys of meeting "ab".
func scopedPrefix(prefix, scope string) []byte {
	buf := make([]byte, 0, len(prefix)+len(scope)+1)
	buf = append(buf, prefix...)
	buf = append(buf, scope...)
	return append(buf, keySeparator)
}

func makeMeetingKey(id string) []byte {
	return []byte(meetingPrefix + id)
}

// makeTranscriptKey generates a composite key ordered by start offset.
// Format: prefix meetingID 0x00 offset(8) id(8)
func makeTranscriptKey(meetingID string, startOffset int64, id core.ID) []byte {
	buf := scopedPrefix(transcriptPrefix, meetingID)
	// BigEndian so lexicographic order matches numeric order
	buf = binary.BigEndian.AppendUint64(buf, uint64(startOffset))
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makePartialTranscriptKey generates a partial key for range seeks.
func makePartialTranscriptKey(meetingID string, startOffset int64) []byte {
	buf := scopedPrefix(transcriptPrefix, meetingID)
	return binary.BigEndian.AppendUint64(buf, uint64(startOffset))
}

func makeQAKey(id string) []byte {
	return []byte(qaRecordPrefix + id)
}

// makeQAMeetingKey generates the history index key.
// Format: prefix meetingID 0x00 createdAtMicros(8) id
func makeQAMeetingKey(meetingID string, createdAtMicros int64, id string) []byte {
	buf := scopedPrefix(qaMeetingPrefix, meetingID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAtMicros))
	return append(buf, id...)
}

func makeSummaryKey(meetingID string) []byte {
	return []byte(summaryPrefix + meetingID)
}

func makeCollectionKey(name string) []byte {
	return []byte(vectorCollPrefix + name)
}

func makePointKey(collection, id string) []byte {
	return append(scopedPrefix(vectorPointPrefix, collection), id...)
}

func makeIndexKey(collection, field string) []byte {
	return append(scopedPrefix(vectorIndexPrefix, collection), field...)
}
