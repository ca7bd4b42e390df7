package smpp

import "fmt"

// CommandIDToString converts command ID to string for logging
func CommandIDToString(cmdID uint32) string {
	switch cmdID {
	case CommandBindTransceiver:
		return "BindTransceiver"
	case CommandBindReceiver:
		return "BindReceiver"
	case CommandBindTransmitter:
		return "BindTransmitter"
	case CommandBindTransceiverResp:
		return "BindTransceiverResp"
	case CommandBindReceiverResp:
		return "BindReceiverResp"
	case CommandBindTransmitterResp:
		return "BindTransmitterResp"
	case CommandSubmitSM:
		return "SubmitSM"
	case CommandSubmitSMResp:
		return "SubmitSMResp"
	case CommandDeliverSM:
		return "DeliverSM"
	case CommandDeliverSMResp:
		return "DeliverSMResp"
	case CommandDataSM:
		return "DataSM"
	case CommandDataSMResp:
		return "DataSMResp"
	case CommandUnbind:
		return "Unbind"
	case CommandUnbindResp:
		return "UnbindResp"
	case CommandEnquireLink:
		return "EnquireLink"
	case CommandEnquireLinkResp:
		return "EnquireLinkResp"
	case CommandGenericNack:
		return "GenericNack"
	default:
		return fmt.Sprintf("Unknown(0x%X)", cmdID)
	}
}

// IsBindCommand reports whether cmdID is one of the three bind requests.
func IsBindCommand(cmdID uint32) bool {
	return cmdID == CommandBindReceiver || cmdID == CommandBindTransmitter || cmdID == CommandBindTransceiver
}

// ResponseID returns the response command id for a request command id.
func ResponseID(cmdID uint32) uint32 {
	return cmdID | CommandGenericNack
}
