package ledger

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// orderFlowABI is the consumed surface of the deployed P2POrderFlow
// contract: two reads, four writes, two notifications. The contract itself
// (validation, authorization) is external; only its interface is mirrored.
const orderFlowABI = `[
  {"type":"function","name":"orderCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getOrder","stateMutability":"view","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[{"name":"buyer","type":"address"},{"name":"merchant","type":"address"},{"name":"orderType","type":"uint8"},{"name":"upiId","type":"string"},{"name":"amount","type":"uint256"},{"name":"status","type":"uint8"}]},
  {"type":"function","name":"createOrder","stateMutability":"nonpayable","inputs":[{"name":"merchant","type":"address"},{"name":"orderType","type":"uint8"},{"name":"upiId","type":"string"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buyerMarkPaid","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"merchantMarkReceived","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"merchantMarkPaid","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"OrderCreated","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"merchant","type":"address","indexed":true},{"name":"orderType","type":"uint8","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"upiId","type":"string","indexed":false}]},
  {"type":"event","name":"OrderStatusChanged","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"merchant","type":"address","indexed":true},{"name":"orderType","type":"uint8","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"newStatus","type":"uint8","indexed":false}]}
]`

var (
	abiOnce   sync.Once
	parsedABI abi.ABI
	abiErr    error
)

func contractABI() (abi.ABI, error) {
	abiOnce.Do(func() {
		parsedABI, abiErr = abi.JSON(strings.NewReader(orderFlowABI))
	})
	return parsedABI, abiErr
}
