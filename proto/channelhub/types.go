// Package channelhub defines the Channel-Hub wire message types: channel
// (un)registration, the channel list query, and the pad-request bridge
// between a consumer and a producer.
package channelhub

import "github.com/p2psignal/peerlink/proto"

const (
	RegisterChannel uint16 = proto.Limit + iota
	UnregisterChannel
	GetChannels
	GetChannelsResponse // S->C: its own reply frame to GetChannels, body from BuildGetChannelsResponse
	RequestPad          // C->S (consumer) and S->C (to producer), same layout
	PadCreated          // C->S (from producer): {channel_name_len, channel, pad_name}
	PadRequestResponse  // S->C: its own reply frame to the consumer's RequestPad, body = pad name
)

func BuildRegisterChannel(id uint32, name string) []byte {
	return proto.Build(RegisterChannel, id, name)
}

func BuildUnregisterChannel(id uint32, name string) []byte {
	return proto.Build(UnregisterChannel, id, name)
}

func BuildGetChannels(id uint32) []byte { return proto.Build(GetChannels, id) }

// BuildGetChannelsResponse encodes the NUL-separated channel list that
// rides as the body of the GetChannelsResponse frame.
func BuildGetChannelsResponse(names []string) []byte {
	return proto.PackStrings(names)
}

// ParseGetChannelsResponse accepts both NUL-packing conventions, per the
// open question recorded in the design notes.
func ParseGetChannelsResponse(body []byte) []string {
	return proto.ParseStrings(body)
}

// BuildRequestPad encodes a RequestPad frame; channelName is the whole body.
func BuildRequestPad(id uint32, channelName string) []byte {
	return proto.Build(RequestPad, id, channelName)
}

func ParseRequestPad(body []byte) (channelName string) {
	return string(body)
}

// BuildPadCreated encodes the producer's reply: the channel name (length
// prefixed) followed by the pad name (remainder of the body). An empty pad
// name means the producer denied the request.
func BuildPadCreated(id uint32, channelName, padName string) []byte {
	return proto.Build(PadCreated, id, uint16(len(channelName)), channelName, padName)
}

func ParsePadCreated(body []byte) (channelName, padName string, ok bool) {
	if len(body) < 2 {
		return "", "", false
	}
	nameLen := int(body[0]) | int(body[1])<<8
	rest := body[2:]
	if len(rest) < nameLen {
		return "", "", false
	}
	return string(rest[:nameLen]), string(rest[nameLen:]), true
}

// BuildPadRequestResponse encodes the reply body delivered to the consumer
// session waiting on its RequestPad call; an empty padName means denial.
func BuildPadRequestResponse(padName string) []byte {
	return []byte(padName)
}

func ParsePadRequestResponse(body []byte) (padName string) {
	return string(body)
}
