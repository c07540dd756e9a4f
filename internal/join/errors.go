package join

import "github.com/intercoop-network/dag-core/pkg/utils"

func errStructural(msg string) error {
	return utils.New(utils.KindStructural, msg)
}

func errQuorum(msg string) error {
	return utils.New(utils.KindQuorum, msg)
}
