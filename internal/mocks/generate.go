package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Publisher --dir ../domain/dispatch --output domain/dispatch --outpkg dispatchmock --filename publisher_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name FileDiscovery --dir ../domain/dispatch --output domain/dispatch --outpkg dispatchmock --filename file_discovery_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/dispatchaudit --output domain/dispatchaudit --outpkg dispatchauditmock --filename repository_mock.go
