package disco

import "github.com/sirupsen/logrus"

var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the logger used by the core and by Peer.
// A nil logger restores logrus' standard logger.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	logger = l
}

func roleName(initiator bool) string {
	if initiator {
		return "initiator"
	}
	return "responder"
}
