package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Order sides as the exchange contract encodes them.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

// Event names emitted by the PropertyExchange contract.
const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
	EventOrdersMatched  = "OrdersMatched"
	EventEscrowCreated  = "EscrowCreated"
	EventEscrowReleased = "EscrowReleased"
	EventEscrowRefunded = "EscrowRefunded"
)

const propertyExchangeABI = `[
{"inputs":[{"name":"propertyId","type":"uint256"},{"name":"side","type":"uint8"},{"name":"price","type":"uint256"},{"name":"quantity","type":"uint256"},{"name":"expiry","type":"uint256"}],"name":"createOrder","outputs":[{"name":"","type":"uint256"}],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"orderId","type":"uint256"}],"name":"cancelOrder","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"buyOrderId","type":"uint256"},{"name":"sellOrderId","type":"uint256"},{"name":"quantity","type":"uint256"}],"name":"matchOrders","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"tradeId","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"conditions","type":"string"}],"name":"createEscrow","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"escrowId","type":"uint256"}],"name":"releaseEscrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"escrowId","type":"uint256"}],"name":"refundEscrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"owner","type":"address"},{"name":"propertyId","type":"uint256"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"orderId","type":"uint256"},{"indexed":true,"name":"propertyId","type":"uint256"},{"indexed":false,"name":"trader","type":"address"},{"indexed":false,"name":"side","type":"uint8"},{"indexed":false,"name":"price","type":"uint256"},{"indexed":false,"name":"quantity","type":"uint256"},{"indexed":false,"name":"expiry","type":"uint256"}],"name":"OrderCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"orderId","type":"uint256"}],"name":"OrderCancelled","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"tradeId","type":"uint256"},{"indexed":false,"name":"buyOrderId","type":"uint256"},{"indexed":false,"name":"sellOrderId","type":"uint256"},{"indexed":false,"name":"propertyId","type":"uint256"},{"indexed":false,"name":"price","type":"uint256"},{"indexed":false,"name":"quantity","type":"uint256"},{"indexed":false,"name":"buyer","type":"address"},{"indexed":false,"name":"seller","type":"address"}],"name":"OrdersMatched","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"escrowId","type":"uint256"},{"indexed":false,"name":"tradeId","type":"uint256"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"EscrowCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"escrowId","type":"uint256"}],"name":"EscrowReleased","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"escrowId","type":"uint256"}],"name":"EscrowRefunded","type":"event"}
]`

// Exchange packs calls for and decodes events from the PropertyExchange
// contract, which owns identifier assignment for orders, trades and escrows.
type Exchange struct {
	abi     abi.ABI
	address common.Address
}

func NewExchange(address common.Address) (*Exchange, error) {
	parsed, err := abi.JSON(strings.NewReader(propertyExchangeABI))
	if err != nil {
		return nil, fmt.Errorf("parse exchange ABI: %w", err)
	}
	return &Exchange{abi: parsed, address: address}, nil
}

func (e *Exchange) Address() common.Address { return e.address }

func (e *Exchange) PackCreateOrder(propertyID *big.Int, side uint8, price, quantity, expiry *big.Int) ([]byte, error) {
	return e.abi.Pack("createOrder", propertyID, side, price, quantity, expiry)
}

func (e *Exchange) PackCancelOrder(orderID *big.Int) ([]byte, error) {
	return e.abi.Pack("cancelOrder", orderID)
}

func (e *Exchange) PackMatchOrders(buyOrderID, sellOrderID, quantity *big.Int) ([]byte, error) {
	return e.abi.Pack("matchOrders", buyOrderID, sellOrderID, quantity)
}

func (e *Exchange) PackCreateEscrow(tradeID, amount *big.Int, conditions string) ([]byte, error) {
	return e.abi.Pack("createEscrow", tradeID, amount, conditions)
}

func (e *Exchange) PackReleaseEscrow(escrowID *big.Int) ([]byte, error) {
	return e.abi.Pack("releaseEscrow", escrowID)
}

func (e *Exchange) PackRefundEscrow(escrowID *big.Int) ([]byte, error) {
	return e.abi.Pack("refundEscrow", escrowID)
}

// Allowance reads the quantity of a property token the owner has authorized
// the exchange to move on their behalf.
func (e *Exchange) Allowance(ctx context.Context, client *Client, owner common.Address, propertyID *big.Int) (*big.Int, error) {
	data, err := e.abi.Pack("allowance", owner, propertyID)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	out, err := client.Call(ctx, ethereum.CallMsg{To: &e.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("allowance call: %w", err)
	}
	unpacked, err := e.abi.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	if len(unpacked) == 0 {
		return big.NewInt(0), nil
	}
	value, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance result type %T", unpacked[0])
	}
	return value, nil
}

// Event is a decoded PropertyExchange log. Only the fields relevant to the
// named event are set.
type Event struct {
	Name       string
	OrderID    *big.Int
	PropertyID *big.Int
	Trader     common.Address
	Side       uint8
	Price      *big.Int
	Quantity   *big.Int
	Expiry     *big.Int

	TradeID     *big.Int
	BuyOrderID  *big.Int
	SellOrderID *big.Int
	Buyer       common.Address
	Seller      common.Address

	EscrowID *big.Int
	Amount   *big.Int
}

// FindEvent scans a receipt for the named event emitted by this contract.
// Returns (nil, nil) when the event is absent; the caller decides whether
// that is a mismatch.
func (e *Exchange) FindEvent(receipt *types.Receipt, name string) (*Event, error) {
	def, ok := e.abi.Events[name]
	if !ok {
		return nil, fmt.Errorf("unknown exchange event %q", name)
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != e.address {
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != def.ID {
			continue
		}
		return e.decodeEvent(def, log)
	}
	return nil, nil
}

func (e *Exchange) decodeEvent(def abi.Event, log *types.Log) (*Event, error) {
	event := &Event{Name: def.Name}

	// Indexed uint256 args arrive as topics.
	indexed := def.Inputs[:0:0]
	for _, input := range def.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed)+1 != len(log.Topics) {
		return nil, fmt.Errorf("event %s: expected %d topics, got %d", def.Name, len(indexed)+1, len(log.Topics))
	}

	values := map[string]any{}
	for i, input := range indexed {
		values[input.Name] = new(big.Int).SetBytes(log.Topics[i+1].Bytes())
	}
	if len(log.Data) > 0 {
		if err := def.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
			return nil, fmt.Errorf("event %s: unpack data: %w", def.Name, err)
		}
	}

	for name, value := range values {
		switch name {
		case "orderId":
			event.OrderID = asBigInt(value)
		case "propertyId":
			event.PropertyID = asBigInt(value)
		case "trader":
			event.Trader = asAddress(value)
		case "side":
			if v, ok := value.(uint8); ok {
				event.Side = v
			}
		case "price":
			event.Price = asBigInt(value)
		case "quantity":
			event.Quantity = asBigInt(value)
		case "expiry":
			event.Expiry = asBigInt(value)
		case "tradeId":
			event.TradeID = asBigInt(value)
		case "buyOrderId":
			event.BuyOrderID = asBigInt(value)
		case "sellOrderId":
			event.SellOrderID = asBigInt(value)
		case "buyer":
			event.Buyer = asAddress(value)
		case "seller":
			event.Seller = asAddress(value)
		case "escrowId":
			event.EscrowID = asBigInt(value)
		case "amount":
			event.Amount = asBigInt(value)
		}
	}

	return event, nil
}

func asBigInt(value any) *big.Int {
	if v, ok := value.(*big.Int); ok {
		return v
	}
	return nil
}

func asAddress(value any) common.Address {
	if v, ok := value.(common.Address); ok {
		return v
	}
	return common.Address{}
}
